package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"eventsnow-bot/internal/config"
	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/notify"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/store"
	"eventsnow-bot/internal/wizard"
)

var (
	ErrForbidden = errors.New("action not allowed for this user")
	// ErrWrongState means the event was already moved on by someone else.
	ErrWrongState      = errors.New("event is not in the expected state")
	ErrReasonTooShort  = errors.New("reject reason is too short")
	ErrTestPaymentsOff = errors.New("test payments are disabled")
)

const minReasonLen = 3

// Publisher runs the new-event fan-out.
type Publisher interface {
	Publish(ctx context.Context, e *models.Event) (notify.Result, error)
}

// Ledger mirrors moderation and payment facts to an external sheet.
type Ledger interface {
	AppendModeration(ctx context.Context, e *models.Event, action string, actorID int64) error
	AppendPayment(ctx context.Context, e *models.Event, p *models.Payment) error
}

type Deps struct {
	Store   *store.Store
	Admins  config.AdminSet
	Catalog config.Catalog
	Sender  notify.Sender
	FanOut  Publisher
	// Gateway and Ledger are optional.
	Gateway payments.Provider
	Ledger  Ledger

	RealPayments   bool
	ReturnURL      string
	GatewayTimeout time.Duration
	SendTimeout    time.Duration
}

type Service struct {
	Deps
	wg sync.WaitGroup
}

func New(d Deps) *Service {
	if d.GatewayTimeout <= 0 {
		d.GatewayTimeout = 15 * time.Second
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = 10 * time.Second
	}
	if d.Admins == nil {
		d.Admins = config.AdminSet{}
	}
	return &Service{Deps: d}
}

// Wait blocks until post-commit side effects started so far have finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) IsAdmin(tgID int64) bool { return s.Admins.Has(tgID) }

// TestMode reports whether payments are confirmed by the organizer's test button.
func (s *Service) TestMode() bool { return !s.RealPayments || s.Gateway == nil }

// Submit persists a confirmed wizard draft as a new pending event and alerts the admins.
func (s *Service) Submit(ctx context.Context, actor store.TouchInput, d wizard.Draft) (*models.Event, error) {
	e := d.Event(actor.TelegramID)
	err := s.Store.Tx(ctx, func(tx *store.Store) error {
		actor.Role = models.RoleOrganizer
		if actor.CitySlug == "" {
			actor.CitySlug = d.CitySlug
		}
		if _, err := tx.TouchUser(ctx, actor); err != nil {
			return fmt.Errorf("touch organizer: %w", err)
		}
		return tx.CreateEvent(ctx, e, d.Photos)
	})
	if err != nil {
		return nil, fmt.Errorf("submit event: %w", err)
	}
	log.Printf("moderation: event %d submitted by %d", e.ID, actor.TelegramID)
	s.alertAdmins(ctx, e, "🆕 *Новая заявка на модерацию*")
	return e, nil
}

// Approve moves a pending event to waiting-for-payment.
func (s *Service) Approve(ctx context.Context, actorID int64, eventID uint) (*models.Event, error) {
	if !s.IsAdmin(actorID) {
		return nil, s.deny(ctx, actorID, "approve", eventID, "not an admin")
	}
	e, err := store.TxResult(ctx, s.Store, func(tx *store.Store) (*models.Event, error) {
		if _, err := tx.GetEventForUpdate(ctx, eventID); err != nil {
			return nil, err
		}
		ok, err := tx.CompareAndSetStatus(ctx, eventID,
			[]models.EventStatus{models.StatusPendingModeration},
			map[string]any{"status": models.StatusApprovedWaitingPayment, "reject_reason": nil})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrWrongState
		}
		if err := tx.LogModAction(ctx, actorID, "approve", eventID, ""); err != nil {
			return nil, err
		}
		return tx.GetEvent(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("moderation: event %d approved by %d", eventID, actorID)

	s.send(ctx, e.UserID, s.approvedMessage(e))
	s.mirrorModeration(ctx, e, "approve", actorID)
	return e, nil
}

// Reject stores the reason and tells the organizer how to resubmit.
func (s *Service) Reject(ctx context.Context, actorID int64, eventID uint, reason string) (*models.Event, error) {
	if !s.IsAdmin(actorID) {
		return nil, s.deny(ctx, actorID, "reject", eventID, "not an admin")
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < minReasonLen {
		return nil, ErrReasonTooShort
	}
	e, err := store.TxResult(ctx, s.Store, func(tx *store.Store) (*models.Event, error) {
		if _, err := tx.GetEventForUpdate(ctx, eventID); err != nil {
			return nil, err
		}
		ok, err := tx.CompareAndSetStatus(ctx, eventID,
			[]models.EventStatus{models.StatusPendingModeration},
			map[string]any{"status": models.StatusRejected, "reject_reason": reason})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrWrongState
		}
		if err := tx.LogModAction(ctx, actorID, "reject", eventID, reason); err != nil {
			return nil, err
		}
		return tx.GetEvent(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("moderation: event %d rejected by %d", eventID, actorID)

	s.send(ctx, e.UserID, rejectedMessage(e))
	s.mirrorModeration(ctx, e, "reject", actorID)
	return e, nil
}

// Resubmit clones a rejected event into a fresh pending one. The original stays untouched.
func (s *Service) Resubmit(ctx context.Context, actorID int64, eventID uint) (*models.Event, error) {
	orig, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if orig.UserID != actorID {
		return nil, s.deny(ctx, actorID, "resubmit", eventID, "not the owner")
	}

	clone, err := store.TxResult(ctx, s.Store, func(tx *store.Store) (*models.Event, error) {
		cur, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if cur.Status != models.StatusRejected {
			return nil, ErrWrongState
		}
		// one live clone per rejected original
		switch _, err := tx.LiveResubmission(ctx, eventID); {
		case err == nil:
			return nil, ErrWrongState
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
		ph, err := tx.ListPhotos(ctx, eventID)
		if err != nil {
			return nil, err
		}
		c := cloneEvent(cur)
		photos := make([]string, 0, len(ph))
		for _, p := range ph {
			photos = append(photos, p.FileID)
		}
		if err := tx.CreateEvent(ctx, c, photos); err != nil {
			return nil, err
		}
		if err := tx.LogModAction(ctx, actorID, "resubmit", c.ID, fmt.Sprintf("from %d", eventID)); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("moderation: event %d resubmitted as %d", eventID, clone.ID)
	s.alertAdmins(ctx, clone, fmt.Sprintf("🔁 *Повторная заявка* (исправлена после отказа #%d)", eventID))
	return clone, nil
}

func cloneEvent(src *models.Event) *models.Event {
	from := src.ID
	c := &models.Event{
		UserID:            src.UserID,
		CitySlug:          src.CitySlug,
		Title:             src.Title,
		Category:          src.Category,
		Description:       src.Description,
		Contact:           src.Contact,
		Location:          src.Location,
		FreeKidsUptoAge:   copyPtr(src.FreeKidsUptoAge),
		PriceAdmission:    copyPtr(src.PriceAdmission),
		EventDate:         copyPtr(src.EventDate),
		EventTimeStart:    src.EventTimeStart,
		EventTimeEnd:      src.EventTimeEnd,
		PeriodStart:       copyPtr(src.PeriodStart),
		PeriodEnd:         copyPtr(src.PeriodEnd),
		WorkingHoursStart: src.WorkingHoursStart,
		WorkingHoursEnd:   src.WorkingHoursEnd,
		Status:            models.StatusPendingModeration,
		PaymentStatus:     models.PaymentPending,
		ResubmittedFromID: &from,
	}
	if len(src.AdmissionPriceJSON) > 0 {
		m := make(map[string]any, len(src.AdmissionPriceJSON))
		for k, v := range src.AdmissionPriceJSON {
			m[k] = v
		}
		c.AdmissionPriceJSON = m
	}
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Pending returns the moderation queue, oldest first.
func (s *Service) Pending(ctx context.Context, actorID int64, limit int) ([]models.Event, error) {
	if !s.IsAdmin(actorID) {
		return nil, s.deny(ctx, actorID, "queue", 0, "not an admin")
	}
	list, err := s.Store.ListEvents(ctx, store.EventFilter{
		Statuses:    []models.EventStatus{models.StatusPendingModeration},
		Limit:       limit,
		OldestFirst: true,
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Archive runs the daily sweep of finished events.
func (s *Service) Archive(ctx context.Context, today time.Time) (int, error) {
	n, err := s.Store.ArchiveExpired(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("archive sweep: %w", err)
	}
	if n > 0 {
		log.Printf("moderation: archived %d events", n)
	}
	return n, nil
}

// ---------- helpers ----------

func (s *Service) deny(ctx context.Context, actorID int64, action string, eventID uint, why string) error {
	log.Printf("moderation: DENIED %s on event %d for %d: %s", action, eventID, actorID, why)
	if err := s.Store.LogModAction(ctx, actorID, "denied:"+action, eventID, why); err != nil {
		log.Printf("moderation: audit: %v", err)
	}
	return ErrForbidden
}

func (s *Service) cityName(slug string) string {
	if c, ok := s.Catalog.City(slug); ok {
		return c.Name
	}
	return slug
}

func (s *Service) send(ctx context.Context, chatID int64, msg notify.Message) {
	if s.Sender == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.SendTimeout)
	defer cancel()
	if err := s.Sender.Send(sctx, chatID, msg); err != nil {
		log.Printf("moderation: send to %d: %v", chatID, err)
	}
}

func (s *Service) alertAdmins(ctx context.Context, e *models.Event, header string) {
	msg := s.ModerationMessage(e, header)
	for _, id := range s.Admins.IDs() {
		s.send(ctx, id, msg)
	}
}

func (s *Service) mirrorModeration(ctx context.Context, e *models.Event, action string, actorID int64) {
	if s.Ledger == nil {
		return
	}
	s.async(ctx, "ledger:moderation", func(ctx context.Context) {
		if err := s.Ledger.AppendModeration(ctx, e, action, actorID); err != nil {
			log.Printf("moderation: ledger: %v", err)
		}
	})
}

// async runs a post-commit side effect detached from the caller's cancellation.
func (s *Service) async(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("💥 PANIC [%s]: %v\n%s", name, r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}
