package wizard

import (
	"errors"
	"fmt"
	"time"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/pricing"
)

const (
	MaxPhotos         = 5
	MaxDescriptionLen = 2000
	MaxFreeKidsAge    = 18
)

var (
	ErrAlreadySubmitting = errors.New("wizard: submission already in progress")
	ErrFinished          = errors.New("wizard: session is finished")
)

// ValidationError means the input was rejected and the session stayed on Step.
type ValidationError struct {
	Step Step
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(step Step, format string, args ...any) error {
	return &ValidationError{Step: step, Msg: fmt.Sprintf(format, args...)}
}

type Step int

const (
	StepCity Step = iota + 1
	StepCategory
	StepTitle
	StepDescription
	StepDateOrPeriod
	StepTimeStart
	StepTimeEnd
	StepLocation
	StepContact
	StepPriceMode
	StepAdmissionPrice
	StepFreeKids
	StepFreeKidsAge
	StepPhotos
	StepConfirm
	StepDone
)

var stepNames = map[Step]string{
	StepCity:           "city",
	StepCategory:       "category",
	StepTitle:          "title",
	StepDescription:    "description",
	StepDateOrPeriod:   "date_or_period",
	StepTimeStart:      "time_start",
	StepTimeEnd:        "time_end",
	StepLocation:       "location",
	StepContact:        "contact",
	StepPriceMode:      "price_mode",
	StepAdmissionPrice: "admission_price",
	StepFreeKids:       "free_kids",
	StepFreeKidsAge:    "free_kids_age",
	StepPhotos:         "photos",
	StepConfirm:        "confirm",
	StepDone:           "done",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// PriceMode selects which tier keys the admission price must contain.
type PriceMode string

const (
	PriceOne        PriceMode = "one"
	PriceChildAdult PriceMode = "child_adult"
	PriceFull       PriceMode = "full"
)

var tierPresets = map[PriceMode][]string{
	PriceOne:        {"all"},
	PriceChildAdult: {"child", "adult"},
	PriceFull:       {"child", "student", "adult", "senior"},
}

// TierKeys returns the exact key set required for the mode.
func (m PriceMode) TierKeys() []string { return tierPresets[m] }

func (m PriceMode) IsValid() bool {
	_, ok := tierPresets[m]
	return ok
}

// Draft is everything collected by the wizard; it becomes one Event on submit.
type Draft struct {
	CitySlug    string
	CityName    string
	Category    models.Category
	Title       string
	Description string

	EventDate   *time.Time
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	TimeStart   string
	TimeEnd     string

	Location string
	Contact  string

	PriceMode       PriceMode
	Price           *float64
	Tiers           map[string]float64
	FreeKidsUptoAge *int

	Photos []string

	// Placement is the advisory price preview; PlacementErr is set when it failed.
	Placement    *pricing.Result
	PlacementErr string
}

// Event builds the record persisted on submit.
func (d Draft) Event(owner int64) *models.Event {
	e := &models.Event{
		UserID:          owner,
		CitySlug:        d.CitySlug,
		Title:           d.Title,
		Category:        d.Category,
		Description:     d.Description,
		Contact:         d.Contact,
		Location:        d.Location,
		FreeKidsUptoAge: d.FreeKidsUptoAge,
		Status:          models.StatusPendingModeration,
		PaymentStatus:   models.PaymentPending,
	}
	if d.PeriodStart != nil {
		e.PeriodStart, e.PeriodEnd = d.PeriodStart, d.PeriodEnd
		e.WorkingHoursStart, e.WorkingHoursEnd = d.TimeStart, d.TimeEnd
	} else {
		e.EventDate = d.EventDate
		e.EventTimeStart, e.EventTimeEnd = d.TimeStart, d.TimeEnd
	}
	if len(d.Tiers) > 0 {
		m := make(map[string]any, len(d.Tiers))
		for k, v := range d.Tiers {
			m[k] = v
		}
		e.AdmissionPriceJSON = m
	} else if d.Price != nil {
		p := *d.Price
		e.PriceAdmission = &p
	}
	return e
}

type Session struct {
	UserID     int64
	Step       Step
	Draft      Draft
	Submitting bool
	StartedAt  time.Time
	UpdatedAt  time.Time
}

type InputKind int

const (
	InputText InputKind = iota + 1
	InputAction
	InputPhoto
)

type Input struct {
	Kind  InputKind
	Value string
}

func Text(s string) Input { return Input{Kind: InputText, Value: s} }

func Action(id string) Input { return Input{Kind: InputAction, Value: id} }

func Photo(fileID string) Input { return Input{Kind: InputPhoto, Value: fileID} }

// Option is an action offered to the user; rendering is up to the transport.
type Option struct {
	ID    string
	Label string
}

type Reply struct {
	Step    Step
	Prompt  string
	Options []Option
	// Submit is set when the user confirmed; the caller persists it.
	Submit *Draft
	// Cancelled is set when the user declined at confirm.
	Cancelled bool
}

// Action ids understood by the machine.
const (
	ActPhotosDone   = "photos:done"
	ActPhotosSkip   = "photos:skip"
	ActPhotosRemove = "photos:remove_last"
	ActKidsYes      = "kids:yes"
	ActKidsNo       = "kids:no"
	ActConfirmYes   = "confirm:yes"
	ActConfirmNo    = "confirm:no"
	actCityPrefix   = "city:"
	actCatPrefix    = "cat:"
	actModePrefix   = "mode:"
)

// Machine validates wizard input against the city catalog and pricing table.
// It performs no I/O.
type Machine struct {
	catalog config.Catalog
	now     func() time.Time
}

func NewMachine(cat config.Catalog) *Machine {
	return &Machine{catalog: cat, now: time.Now}
}

// Start opens a fresh session at the city step.
func (m *Machine) Start(userID int64) (*Session, Reply) {
	now := m.now()
	s := &Session{UserID: userID, Step: StepCity, StartedAt: now, UpdatedAt: now}
	return s, m.prompt(s)
}

// Prompt re-renders the question for the current step.
func (m *Machine) Prompt(s *Session) Reply { return m.prompt(s) }

// Input applies one user input. On a *ValidationError the session is left untouched.
func (m *Machine) Input(s *Session, in Input) (Reply, error) {
	if s.Step == StepDone {
		if s.Submitting {
			return Reply{Step: StepDone}, ErrAlreadySubmitting
		}
		return Reply{Step: StepDone}, ErrFinished
	}

	h, ok := m.handlers()[s.Step]
	if !ok {
		return Reply{}, fmt.Errorf("wizard: no handler for %s", s.Step)
	}
	next := *s
	next.Draft.Photos = append([]string(nil), s.Draft.Photos...)

	reply, err := h(&next, in)
	if err != nil {
		return m.withPrompt(s, err)
	}
	next.UpdatedAt = m.now()
	*s = next
	if reply.Submit != nil || reply.Cancelled {
		return reply, nil
	}
	r := m.prompt(s)
	if reply.Prompt != "" {
		r.Prompt = reply.Prompt + "\n\n" + r.Prompt
	}
	return r, nil
}

func (m *Machine) withPrompt(s *Session, err error) (Reply, error) {
	r := m.prompt(s)
	var ve *ValidationError
	if errors.As(err, &ve) {
		r.Prompt = ve.Msg + "\n\n" + r.Prompt
	}
	return r, err
}
