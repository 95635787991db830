package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/payments/stub"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/wizard"
)

const (
	adminID = int64(1000)
	ownerID = int64(42)
)

// --- fakes ---

type sentMsg struct {
	chatID int64
	msg    notify.Message
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{chatID, msg})
	return nil
}

func (f *fakeSender) to(chatID int64) []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Message
	for _, s := range f.sent {
		if s.chatID == chatID {
			out = append(out, s.msg)
		}
	}
	return out
}

type fakePublisher struct{ calls atomic.Int32 }

func (f *fakePublisher) Publish(ctx context.Context, e *models.Event) (notify.Result, error) {
	f.calls.Add(1)
	return notify.Result{}, nil
}

type fakeGateway struct {
	err   error
	calls int
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCharge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	g.calls++
	if g.err != nil {
		return payments.Charge{}, g.err
	}
	return payments.Charge{ExternalID: "ext-" + req.IdempotencyKey, RedirectURL: "https://pay.example/" + req.IdempotencyKey}, nil
}

func (g *fakeGateway) ParseWebhook(ctx context.Context, body []byte, headers map[string]string) (payments.WebhookEvent, error) {
	return payments.WebhookEvent{}, nil
}

// --- fixture ---

type fixture struct {
	st     *store.Store
	svc    *Service
	sender *fakeSender
	pub    *fakePublisher
}

func newFixture(t *testing.T, gw payments.Provider) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "mod.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &fixture{st: st, sender: &fakeSender{}, pub: &fakePublisher{}}
	f.svc = New(Deps{
		Store:        st,
		Admins:       config.AdminSet{adminID: true},
		Catalog:      config.DefaultCatalog(),
		Sender:       f.sender,
		FanOut:       f.pub,
		Gateway:      gw,
		RealPayments: gw != nil,
		ReturnURL:    "https://t.me/Events_Now_bot",
	})
	return f
}

func (f *fixture) event(t *testing.T, status models.EventStatus, photos ...string) *models.Event {
	t.Helper()
	d := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	price := 500.0
	e := &models.Event{
		UserID: ownerID, CitySlug: "nojabrsk", Title: "Джазовый вечер", Category: models.CategoryConcert,
		Description: "Живая музыка весь вечер", Contact: "@jazz", Location: "ДК Строитель",
		EventDate: &d, EventTimeStart: "19:00", EventTimeEnd: "22:00", PriceAdmission: &price,
		Status: status, PaymentStatus: models.PaymentPending,
	}
	if err := f.st.CreateEvent(context.Background(), e, photos); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func (f *fixture) status(t *testing.T, id uint) models.EventStatus {
	t.Helper()
	e, err := f.st.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	return e.Status
}

// --- tests ---

func TestSubmitCreatesPendingEventAndAlertsAdmins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	d := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	price := 300.0
	draft := wizard.Draft{
		CitySlug: "nojabrsk", CityName: "Ноябрьск", Category: models.CategoryMasterclass,
		Title: "Гончарный круг", Description: "Лепим чашки из глины", EventDate: &d,
		TimeStart: "12:00", TimeEnd: "14:00", Location: "Мастерская", Contact: "@clay",
		Price: &price, Photos: []string{"p1", "p2"},
	}
	e, err := f.svc.Submit(ctx, store.TouchInput{TelegramID: ownerID, Username: "clay"}, draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := f.st.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPendingModeration || got.PaymentStatus != models.PaymentPending || len(got.Photos) != 2 {
		t.Fatalf("event %+v", got)
	}
	u, err := f.st.GetUser(ctx, ownerID)
	if err != nil || u.Role != models.RoleOrganizer || u.CitySlug != "nojabrsk" {
		t.Fatalf("organizer %+v %v", u, err)
	}

	msgs := f.sender.to(adminID)
	if len(msgs) != 1 {
		t.Fatalf("admin messages: %d", len(msgs))
	}
	if msgs[0].Actions[0][0].Data != ActionData(ActApprove, e.ID) || msgs[0].PhotoFileID != "p1" {
		t.Fatalf("moderation message %+v", msgs[0])
	}
}

func TestApproveRejectGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusPendingModeration)

	if _, err := f.svc.Approve(ctx, ownerID, e.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin approve: %v", err)
	}
	if _, err := f.svc.Reject(ctx, ownerID, e.ID, "плохое фото"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin reject: %v", err)
	}
	if st := f.status(t, e.ID); st != models.StatusPendingModeration {
		t.Fatalf("status changed to %s", st)
	}
	acts, err := f.st.ListModActions(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 2 || !strings.HasPrefix(acts[0].Action, "denied:") {
		t.Fatalf("audit rows %+v", acts)
	}
	if len(f.sender.to(ownerID)) != 0 {
		t.Fatalf("organizer must not be notified")
	}
}

func TestStartPaymentByStrangerCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	if _, err := f.svc.StartPayment(ctx, ownerID+1, e.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v", err)
	}
	if _, err := f.st.GetPaymentByEvent(ctx, e.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("payment row exists: %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceTest, EventID: e.ID, ActorID: ownerID + 1}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger confirm: %v", err)
	}
	if st := f.status(t, e.ID); st != models.StatusApprovedWaitingPayment {
		t.Fatalf("status %s", st)
	}
}

func TestApproveTwice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusPendingModeration)

	got, err := f.svc.Approve(ctx, adminID, e.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != models.StatusApprovedWaitingPayment {
		t.Fatalf("status %s", got.Status)
	}
	if _, err := f.svc.Approve(ctx, adminID, e.ID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("second approve: %v", err)
	}
	msgs := f.sender.to(ownerID)
	if len(msgs) != 1 {
		t.Fatalf("organizer got %d messages", len(msgs))
	}
	if len(msgs[0].Actions) != 2 || msgs[0].Actions[1][0].Data != ActionData(ActPayTest, e.ID) {
		t.Fatalf("approve actions %+v", msgs[0].Actions)
	}
}

func TestRejectNeedsReason(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusPendingModeration)

	if _, err := f.svc.Reject(ctx, adminID, e.ID, " ок "); !errors.Is(err, ErrReasonTooShort) {
		t.Fatalf("short reason: %v", err)
	}
	got, err := f.svc.Reject(ctx, adminID, e.ID, "Нет адреса площадки")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.StatusRejected || got.RejectReason == nil || *got.RejectReason != "Нет адреса площадки" {
		t.Fatalf("rejected event %+v", got)
	}
	msgs := f.sender.to(ownerID)
	if len(msgs) != 1 || msgs[0].Actions[0][0].Data != ActionData(ActResubmit, e.ID) {
		t.Fatalf("organizer messages %+v", msgs)
	}
}

func TestResubmitPreservesPayloadNotIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusPendingModeration, "a", "b", "c")
	if _, err := f.svc.Reject(ctx, adminID, e.ID, "Уточните время"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Resubmit(ctx, ownerID+1, e.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger resubmit: %v", err)
	}

	clone, err := f.svc.Resubmit(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	orig, _ := f.st.GetEvent(ctx, e.ID)
	got, _ := f.st.GetEvent(ctx, clone.ID)

	if got.ID == orig.ID || got.Status != models.StatusPendingModeration {
		t.Fatalf("clone %d status %s", got.ID, got.Status)
	}
	if got.ResubmittedFromID == nil || *got.ResubmittedFromID != orig.ID {
		t.Fatalf("lineage %v", got.ResubmittedFromID)
	}
	if got.Title != orig.Title || got.Description != orig.Description || got.Category != orig.Category ||
		!got.EventDate.Equal(*orig.EventDate) || got.EventTimeStart != orig.EventTimeStart ||
		*got.PriceAdmission != *orig.PriceAdmission || got.RejectReason != nil {
		t.Fatalf("payload differs:\n%+v\n%+v", got, orig)
	}
	if len(got.Photos) != len(orig.Photos) {
		t.Fatalf("photos %d vs %d", len(got.Photos), len(orig.Photos))
	}
	for i := range got.Photos {
		if got.Photos[i].FileID != orig.Photos[i].FileID || got.Photos[i].Position != i+1 {
			t.Fatalf("photo %d: %+v vs %+v", i, got.Photos[i], orig.Photos[i])
		}
	}
	if orig.Status != models.StatusRejected || orig.RejectReason == nil || *orig.RejectReason != "Уточните время" {
		t.Fatalf("original mutated: %+v", orig)
	}
	if len(f.sender.to(adminID)) != 1 {
		t.Fatalf("admins must be alerted about the resubmission")
	}
}

func TestResubmitDoubleTapMakesOneClone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusPendingModeration, "a")
	if _, err := f.svc.Reject(ctx, adminID, e.ID, "Нет контактов"); err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		refused atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Resubmit(ctx, ownerID, e.ID)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, ErrWrongState):
				refused.Add(1)
			default:
				t.Errorf("resubmit: %v", err)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 1 || refused.Load() != 1 {
		t.Fatalf("won %d refused %d", won.Load(), refused.Load())
	}
	if n := len(f.sender.to(adminID)); n != 1 {
		t.Fatalf("admins alerted %d times", n)
	}

	// once the clone is rejected too, the original may be resubmitted again
	clone, err := f.st.LiveResubmission(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reject(ctx, adminID, clone.ID, "Снова нет контактов"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Resubmit(ctx, ownerID, e.ID); err != nil {
		t.Fatalf("resubmit after clone rejected: %v", err)
	}
}

func TestConfirmPaymentRaceSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	tx := "tx-1"
	if err := f.st.CreatePayment(ctx, &models.Payment{
		UserID: ownerID, EventID: e.ID, Category: e.Category, PricingModel: models.PricingDaily,
		Amount: 1499, Status: models.PaymentPending, PaymentSystem: "fake", TransactionID: &tx,
	}); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var winners, already, failed atomic.Int32
	for i := 0; i < workers; i++ {
		c := Confirmation{Source: SourceWebhook, TransactionID: tx}
		if i%2 == 0 {
			c = Confirmation{Source: SourceTest, EventID: e.ID, ActorID: ownerID}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ConfirmPayment(ctx, c)
			switch {
			case err != nil:
				failed.Add(1)
				t.Errorf("confirm: %v", err)
			case res.AlreadyActive:
				already.Add(1)
			default:
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	f.svc.Wait()

	if winners.Load() != 1 || already.Load() != workers-1 || failed.Load() != 0 {
		t.Fatalf("winners=%d already=%d failed=%d", winners.Load(), already.Load(), failed.Load())
	}
	if n := f.pub.calls.Load(); n != 1 {
		t.Fatalf("fan-out ran %d times", n)
	}
	got, _ := f.st.GetEvent(ctx, e.ID)
	if got.Status != models.StatusActive || got.PaymentStatus != models.PaymentCompleted {
		t.Fatalf("event %s/%s", got.Status, got.PaymentStatus)
	}
	p, err := f.st.GetPaymentByEvent(ctx, e.ID)
	if err != nil || p.Status != models.PaymentCompleted || p.CompletedAt == nil {
		t.Fatalf("payment %+v %v", p, err)
	}
}

func TestTestConfirmWithoutPaymentRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceTest, EventID: e.ID, ActorID: ownerID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.svc.Wait()
	if res.Payment == nil || res.Payment.PaymentSystem != "test" || res.Payment.Amount != 1499 {
		t.Fatalf("payment %+v", res.Payment)
	}
	res, err = f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceTest, EventID: e.ID, ActorID: ownerID})
	if err != nil || !res.AlreadyActive {
		t.Fatalf("second confirm: %+v %v", res, err)
	}
	f.svc.Wait()
	if f.pub.calls.Load() != 1 {
		t.Fatalf("fan-out ran %d times", f.pub.calls.Load())
	}
}

func TestStartPaymentTestModeReusesRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	first, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if !first.Test || first.Payment.ID != second.Payment.ID || first.Payment.Amount != 1499 {
		t.Fatalf("first %+v second %+v", first.Payment, second.Payment)
	}
	if first.Payment.PackageDaily != "1_post" || first.Payment.PaymentSystem != "test" {
		t.Fatalf("payment %+v", first.Payment)
	}
}

func TestStartPaymentWrongState(t *testing.T) {
	f := newFixture(t, nil)
	e := f.event(t, models.StatusPendingModeration)
	if _, err := f.svc.StartPayment(context.Background(), ownerID, e.ID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("got %v", err)
	}
}

func TestGatewayFailureLeavesNoPayment(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection reset")}
	f := newFixture(t, gw)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	_, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if !errors.Is(err, payments.ErrGateway) {
		t.Fatalf("got %v", err)
	}
	if _, err := f.st.GetPaymentByEvent(ctx, e.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("payment row left behind: %v", err)
	}
	if st := f.status(t, e.ID); st != models.StatusApprovedWaitingPayment {
		t.Fatalf("status %s", st)
	}
}

func TestRealPaymentWebhookFlow(t *testing.T) {
	gw := &fakeGateway{}
	f := newFixture(t, gw)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	ps, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ps.Test || ps.RedirectURL == "" || ps.Payment.TransactionID == nil || ps.Payment.PaymentSystem != "fake" {
		t.Fatalf("start %+v", ps)
	}
	again, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil || again.Payment.IdempotencyKey != ps.Payment.IdempotencyKey {
		t.Fatalf("restart must reuse the idempotency key: %+v %v", again.Payment, err)
	}

	if _, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceTest, EventID: e.ID, ActorID: ownerID}); !errors.Is(err, ErrTestPaymentsOff) {
		t.Fatalf("test confirm in real mode: %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceWebhook, TransactionID: "unknown"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown transaction: %v", err)
	}

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceWebhook, TransactionID: *ps.Payment.TransactionID, Amount: 1499})
	if err != nil || res.AlreadyActive {
		t.Fatalf("webhook confirm: %+v %v", res, err)
	}
	f.svc.Wait()
	if res.Event.Status != models.StatusActive || f.pub.calls.Load() != 1 {
		t.Fatalf("status %s fan-out %d", res.Event.Status, f.pub.calls.Load())
	}
}

func TestFailPaymentKeepsEventStatus(t *testing.T) {
	gw := &fakeGateway{}
	f := newFixture(t, gw)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	ps, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	p, err := f.svc.FailPayment(ctx, *ps.Payment.TransactionID, models.PaymentCancelled)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if p.Status != models.PaymentCancelled {
		t.Fatalf("payment %s", p.Status)
	}
	got, _ := f.st.GetEvent(ctx, e.ID)
	if got.Status != models.StatusApprovedWaitingPayment || got.PaymentStatus != models.PaymentCancelled {
		t.Fatalf("event %s/%s", got.Status, got.PaymentStatus)
	}

	// a fresh start after a cancel resets the row to pending
	ps, err = f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil || ps.Payment.Status != models.PaymentPending {
		t.Fatalf("restart: %+v %v", ps.Payment, err)
	}
	if got, _ := f.st.GetEvent(ctx, e.ID); got.PaymentStatus != models.PaymentPending {
		t.Fatalf("event payment status %s", got.PaymentStatus)
	}
}

func TestRepeatedPayPressKeepsOneStubInvoice(t *testing.T) {
	f := newFixture(t, stub.New("secret", "https://bot.example.com"))
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	first, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if *first.Payment.TransactionID != *second.Payment.TransactionID || first.RedirectURL != second.RedirectURL {
		t.Fatalf("first %s second %s", *first.Payment.TransactionID, *second.Payment.TransactionID)
	}

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceWebhook, TransactionID: *first.Payment.TransactionID})
	if err != nil || res.Event.Status != models.StatusActive {
		t.Fatalf("confirm via first link: %+v %v", res, err)
	}
	f.svc.Wait()
}

func TestReplacedChargeStillConfirms(t *testing.T) {
	gw := &fakeGateway{}
	f := newFixture(t, gw)
	ctx := context.Background()
	e := f.event(t, models.StatusApprovedWaitingPayment)

	old, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	oldTx := *old.Payment.TransactionID
	if _, err := f.svc.FailPayment(ctx, oldTx, models.PaymentCancelled); err != nil {
		t.Fatalf("fail: %v", err)
	}
	fresh, err := f.svc.StartPayment(ctx, ownerID, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	newTx := *fresh.Payment.TransactionID
	if newTx == oldTx {
		t.Fatalf("a cancelled charge must not be reused")
	}

	// a late cancel for the old link leaves the new charge alone
	p, err := f.svc.FailPayment(ctx, oldTx, models.PaymentCancelled)
	if err != nil || p.Status != models.PaymentPending {
		t.Fatalf("late cancel: %+v %v", p, err)
	}

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceWebhook, TransactionID: oldTx, Amount: 1499})
	if err != nil || res.AlreadyActive || res.Event.Status != models.StatusActive {
		t.Fatalf("confirm via old link: %+v %v", res, err)
	}
	f.svc.Wait()
	if res.Payment.Status != models.PaymentCompleted {
		t.Fatalf("payment %s", res.Payment.Status)
	}
	res, err = f.svc.ConfirmPayment(ctx, Confirmation{Source: SourceWebhook, TransactionID: newTx})
	if err != nil || !res.AlreadyActive {
		t.Fatalf("second link after activation: %+v %v", res, err)
	}
	if f.pub.calls.Load() != 1 {
		t.Fatalf("fan-out ran %d times", f.pub.calls.Load())
	}
}

func TestPendingQueueOldestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	var ids []uint
	for i := 0; i < 12; i++ {
		ids = append(ids, f.event(t, models.StatusPendingModeration).ID)
	}

	list, err := f.svc.Pending(ctx, adminID, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(list) != 10 {
		t.Fatalf("got %d events", len(list))
	}
	for i, e := range list {
		if e.ID != ids[i] {
			t.Fatalf("position %d: event %d, want %d", i, e.ID, ids[i])
		}
	}
	if _, err := f.svc.Pending(ctx, ownerID, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin: %v", err)
	}
}

func TestParseAction(t *testing.T) {
	act, id, ok := ParseAction(ActionData(ActApprove, 17))
	if !ok || act != ActApprove || id != 17 {
		t.Fatalf("got %q %d %v", act, id, ok)
	}
	for _, bad := range []string{"", "adm:approve", "adm:approve:x", "adm:approve:0"} {
		if _, _, ok := ParseAction(bad); ok {
			t.Fatalf("%q must not parse", bad)
		}
	}
}

func TestArchiveDelegatesToSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := f.event(t, models.StatusActive)
	today := e.EventDate.AddDate(0, 0, 1)

	n, err := f.svc.Archive(ctx, today)
	if err != nil || n != 1 {
		t.Fatalf("archived %d %v", n, err)
	}
	if st := f.status(t, e.ID); st != models.StatusArchived {
		t.Fatalf("status %s", st)
	}
}
