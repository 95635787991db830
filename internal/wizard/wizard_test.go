package wizard

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
)

func newMachine() *Machine { return NewMachine(config.DefaultCatalog()) }

func mustInput(t *testing.T, m *Machine, s *Session, in Input) Reply {
	t.Helper()
	r, err := m.Input(s, in)
	if err != nil {
		t.Fatalf("step %s input %q: %v", s.Step, in.Value, err)
	}
	return r
}

// walkTo drives a session for the category up to (not including) the target step.
func walkTo(t *testing.T, m *Machine, cat models.Category, target Step) *Session {
	t.Helper()
	s, _ := m.Start(100)
	script := []struct {
		step Step
		in   Input
	}{
		{StepCity, Action("city:nojabrsk")},
		{StepCategory, Action("cat:" + string(cat))},
		{StepTitle, Text("Весенний концерт")},
		{StepDescription, Text("Большой концерт местных групп")},
		{StepDateOrPeriod, Text("10.05.2026")},
		{StepTimeStart, Text("18:00")},
		{StepTimeEnd, Text("21:00")},
		{StepLocation, Text("ДК Строитель")},
		{StepContact, Text("@organizer")},
		{StepPriceMode, Action("mode:child_adult")},
		{StepAdmissionPrice, Text("500")},
		{StepFreeKids, Action(ActKidsNo)},
	}
	if cat.UsesPeriod() {
		script[4].in = Text("10.05.2026-16.05.2026")
		script[10].in = Text("child=200, adult=500")
	}
	for _, st := range script {
		if s.Step == target {
			return s
		}
		if s.Step != st.step {
			continue
		}
		mustInput(t, m, s, st.in)
	}
	if s.Step != target {
		t.Fatalf("walk ended at %s; want %s", s.Step, target)
	}
	return s
}

func TestDailyFlowSubmits(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryConcert, StepPhotos)

	mustInput(t, m, s, Photo("f1"))
	mustInput(t, m, s, Photo("f2"))
	r := mustInput(t, m, s, Action(ActPhotosDone))
	if r.Step != StepConfirm || s.Step != StepConfirm {
		t.Fatalf("want confirm, got %s", s.Step)
	}
	if s.Draft.Placement == nil || s.Draft.Placement.PackageName != "1_post" || s.Draft.Placement.TotalPrice != 1499 {
		t.Fatalf("unexpected preview %+v (%s)", s.Draft.Placement, s.Draft.PlacementErr)
	}

	r = mustInput(t, m, s, Action(ActConfirmYes))
	if r.Submit == nil {
		t.Fatalf("expected a draft to submit")
	}
	d := r.Submit
	if d.Title != "Весенний концерт" || d.CitySlug != "nojabrsk" || len(d.Photos) != 2 {
		t.Fatalf("draft mismatch: %+v", d)
	}
	if d.EventDate == nil || d.PeriodStart != nil || d.Price == nil || *d.Price != 500 {
		t.Fatalf("schedule/price mismatch: %+v", d)
	}

	e := d.Event(100)
	if e.Status != models.StatusPendingModeration || e.PaymentStatus != models.PaymentPending {
		t.Fatalf("event status %s/%s", e.Status, e.PaymentStatus)
	}
	if e.EventTimeStart != "18:00" || e.WorkingHoursStart != "" || e.AdmissionPriceJSON != nil {
		t.Fatalf("event shape mismatch: %+v", e)
	}
}

func TestDoubleConfirmIsRejected(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryConcert, StepPhotos)
	mustInput(t, m, s, Action(ActPhotosSkip))

	if r := mustInput(t, m, s, Action(ActConfirmYes)); r.Submit == nil {
		t.Fatalf("first confirm must submit")
	}
	r, err := m.Input(s, Action(ActConfirmYes))
	if !errors.Is(err, ErrAlreadySubmitting) {
		t.Fatalf("want ErrAlreadySubmitting, got %v", err)
	}
	if r.Submit != nil {
		t.Fatalf("second confirm must not produce a draft")
	}

	m.Reopen(s)
	if s.Step != StepConfirm || s.Submitting {
		t.Fatalf("reopen: %s %v", s.Step, s.Submitting)
	}
}

func TestConfirmNoDiscards(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryLecture, StepPhotos)
	mustInput(t, m, s, Text("skip"))
	r := mustInput(t, m, s, Action(ActConfirmNo))
	if !r.Cancelled || r.Submit != nil {
		t.Fatalf("want cancelled reply, got %+v", r)
	}
	if _, err := m.Input(s, Action(ActConfirmYes)); !errors.Is(err, ErrFinished) {
		t.Fatalf("want ErrFinished, got %v", err)
	}
}

func TestValidationKeepsSession(t *testing.T) {
	tests := []struct {
		name string
		cat  models.Category
		step Step
		in   Input
	}{
		{"short title", models.CategoryConcert, StepTitle, Text("ab")},
		{"short description", models.CategoryConcert, StepDescription, Text("коротко")},
		{"bad date", models.CategoryConcert, StepDateOrPeriod, Text("2026-05-10x")},
		{"range for concert", models.CategoryConcert, StepDateOrPeriod, Text("10.05.2026-12.05.2026")},
		{"inverted range", models.CategoryExhibition, StepDateOrPeriod, Text("12.05.2026-10.05.2026")},
		{"bad time", models.CategoryConcert, StepTimeStart, Text("25:00")},
		{"short location", models.CategoryConcert, StepLocation, Text("ДК")},
		{"negative price", models.CategoryConcert, StepAdmissionPrice, Text("-5")},
		{"text price", models.CategoryConcert, StepAdmissionPrice, Text("дёшево")},
		{"unknown mode", models.CategoryExhibition, StepPriceMode, Action("mode:vip")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			s := walkTo(t, m, tt.cat, tt.step)
			before := *s
			_, err := m.Input(s, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if s.Step != tt.step || s.Draft.Title != before.Draft.Title {
				t.Fatalf("session changed: %s", s.Step)
			}
		})
	}
}

func TestRangeForSingleDayCategoryMessage(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryMasterclass, StepDateOrPeriod)
	_, err := m.Input(s, Text("10.05.2026-12.05.2026"))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Step != StepDateOrPeriod {
		t.Fatalf("want ValidationError at date step, got %v", err)
	}
	if !strings.HasPrefix(ve.Msg, "Для этой категории нужна одна дата") {
		t.Fatalf("unexpected message %q", ve.Msg)
	}
}

func TestDescriptionUpperBound(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryConcert, StepDescription)
	long := make([]rune, MaxDescriptionLen+1)
	for i := range long {
		long[i] = 'я'
	}
	if _, err := m.Input(s, Text(string(long))); err == nil {
		t.Fatalf("expected rejection of an over-long description")
	}
	mustInput(t, m, s, Text(string(long[:MaxDescriptionLen])))
	if s.Step != StepDateOrPeriod {
		t.Fatalf("step %s", s.Step)
	}
}

func TestComingSoonCityRejected(t *testing.T) {
	m := newMachine()
	s, _ := m.Start(1)
	_, err := m.Input(s, Action("city:muravlenko"))
	var ve *ValidationError
	if !errors.As(err, &ve) || s.Step != StepCity {
		t.Fatalf("want rejection at city step, got %v / %s", err, s.Step)
	}
}

func TestTierInputMustMatchExactKeys(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryExhibition, StepAdmissionPrice)
	if s.Draft.PriceMode != PriceChildAdult {
		t.Fatalf("mode %q", s.Draft.PriceMode)
	}

	for _, bad := range []string{"child=100", "child=100,adult=200,extra=50", "child=100,adult=-1", "child100,adult=200"} {
		if _, err := m.Input(s, Text(bad)); err == nil {
			t.Fatalf("%q must be rejected", bad)
		}
		if s.Step != StepAdmissionPrice {
			t.Fatalf("%q advanced the session to %s", bad, s.Step)
		}
	}

	mustInput(t, m, s, Text("adult=200,child=100"))
	if s.Step != StepFreeKids {
		t.Fatalf("step %s", s.Step)
	}
	if s.Draft.Tiers["child"] != 100 || s.Draft.Tiers["adult"] != 200 || len(s.Draft.Tiers) != 2 {
		t.Fatalf("tiers %v", s.Draft.Tiers)
	}
}

func TestParseTierPricesAliasesAndSemicolons(t *testing.T) {
	got, err := ParseTierPrices("дети=200; студенты=300; взрослые=500; пенсионеры=250", PriceFull.TierKeys())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]float64{"child": 200, "student": 300, "adult": 500, "senior": 250}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: got %v; want %v", k, got[k], v)
		}
	}
}

func TestExhibitionPeriodAndPreview(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryExhibition, StepPhotos)
	if s.Draft.PeriodStart == nil || s.Draft.EventDate != nil {
		t.Fatalf("exhibition must use the period shape: %+v", s.Draft)
	}
	mustInput(t, m, s, Action(ActPhotosSkip))
	p := s.Draft.Placement
	if p == nil || p.Model != models.PricingPeriod || p.Count != 7 {
		t.Fatalf("preview %+v (%s)", p, s.Draft.PlacementErr)
	}

	e := s.Draft.Event(100)
	if e.WorkingHoursStart != "18:00" || e.EventTimeStart != "" || !e.IsPeriod() {
		t.Fatalf("event shape %+v", e)
	}
	if e.PriceAdmission != nil || len(e.TierPrices()) != 2 {
		t.Fatalf("price shape %+v", e)
	}
}

func TestExhibitionSingleDateIsOneDayPeriod(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryExhibition, StepDateOrPeriod)
	mustInput(t, m, s, Text("10.05.2026"))
	if s.Draft.PeriodStart == nil || !s.Draft.PeriodStart.Equal(*s.Draft.PeriodEnd) {
		t.Fatalf("want one-day period, got %+v", s.Draft)
	}
}

func TestFreeKidsAge(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryConcert, StepFreeKids)
	mustInput(t, m, s, Action(ActKidsYes))
	if s.Step != StepFreeKidsAge {
		t.Fatalf("step %s", s.Step)
	}
	for _, bad := range []string{"19", "-1", "шесть"} {
		if _, err := m.Input(s, Text(bad)); err == nil {
			t.Fatalf("%q must be rejected", bad)
		}
	}
	mustInput(t, m, s, Text("6"))
	if s.Draft.FreeKidsUptoAge == nil || *s.Draft.FreeKidsUptoAge != 6 || s.Step != StepPhotos {
		t.Fatalf("age not stored: %+v", s.Draft.FreeKidsUptoAge)
	}
}

func TestPhotoCapAndRemoveLast(t *testing.T) {
	m := newMachine()
	s := walkTo(t, m, models.CategoryConcert, StepPhotos)

	for i := 1; i <= MaxPhotos; i++ {
		mustInput(t, m, s, Photo(fmt.Sprintf("f%d", i)))
	}
	if _, err := m.Input(s, Photo("f6")); err == nil {
		t.Fatalf("sixth photo must be rejected")
	}
	if len(s.Draft.Photos) != MaxPhotos {
		t.Fatalf("photos %v", s.Draft.Photos)
	}

	mustInput(t, m, s, Action(ActPhotosRemove))
	mustInput(t, m, s, Action(ActPhotosRemove))
	mustInput(t, m, s, Photo("g"))
	want := []string{"f1", "f2", "f3", "g"}
	if len(s.Draft.Photos) != len(want) {
		t.Fatalf("photos %v", s.Draft.Photos)
	}
	for i := range want {
		if s.Draft.Photos[i] != want[i] {
			t.Fatalf("photos %v; want %v", s.Draft.Photos, want)
		}
	}

	if _, err := m.Input(s, Text("картинка")); err == nil {
		t.Fatalf("text is not a photo")
	}
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	m := newMachine()
	reg := NewRegistry(30 * time.Minute)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	a, _ := m.Start(1)
	b, _ := m.Start(2)
	reg.Begin(a, t0)
	reg.Begin(b, t0)

	if _, ok := reg.Get(2, t0.Add(20*time.Minute)); !ok {
		t.Fatalf("session 2 should be alive")
	}
	if n := reg.Evict(t0.Add(31 * time.Minute)); n != 1 {
		t.Fatalf("want 1 evicted, got %d", n)
	}
	if _, ok := reg.Get(1, t0.Add(31*time.Minute)); ok {
		t.Fatalf("session 1 should be gone")
	}
	if _, ok := reg.Get(2, t0.Add(45*time.Minute)); !ok {
		t.Fatalf("session 2 was used 25 minutes ago")
	}

	c, _ := m.Start(2)
	reg.Begin(c, t0.Add(46*time.Minute))
	got, _ := reg.Get(2, t0.Add(46*time.Minute))
	if got != c {
		t.Fatalf("Begin must replace the previous session")
	}
	reg.Drop(2)
	if reg.Len() != 0 {
		t.Fatalf("len %d", reg.Len())
	}
}
