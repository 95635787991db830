package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"eventsnow-bot/internal/models"
	"eventsnow-bot/internal/payments"
	"eventsnow-bot/internal/pricing"
	"eventsnow-bot/internal/store"
)

// PaymentStart is what the organizer gets back after pressing "pay".
type PaymentStart struct {
	Event   *models.Event
	Payment *models.Payment
	// RedirectURL is the gateway checkout link; empty in test mode.
	RedirectURL string
	Test        bool
}

type Source string

const (
	SourceTest    Source = "test"
	SourceWebhook Source = "webhook"
)

// Confirmation identifies a payment either by event (test button) or by the
// gateway transaction id (webhook).
type Confirmation struct {
	Source        Source
	EventID       uint
	TransactionID string
	ActorID       int64
	Amount        float64
}

type ConfirmResult struct {
	Event   *models.Event
	Payment *models.Payment
	// AlreadyActive is set when an earlier confirmation won; nothing was changed.
	AlreadyActive bool
}

// quote builds the payment row for the category's first package at current prices.
func (s *Service) quote(e *models.Event) (*models.Payment, error) {
	name, price, err := pricing.FirstPackage(s.Catalog.Pricing, e.Category)
	if err != nil {
		return nil, err
	}
	p := &models.Payment{
		UserID:       e.UserID,
		EventID:      e.ID,
		Category:     e.Category,
		PricingModel: s.Catalog.Pricing[e.Category].Model,
		Amount:       price,
	}
	if p.PricingModel == models.PricingPeriod {
		p.PackagePeriod, p.NumDays = name, 1
	} else {
		p.PackageDaily, p.NumPosts = name, 1
	}
	return p, nil
}

// StartPayment creates or reuses the event's pending payment. In real mode the gateway
// is called before any write, so a gateway failure leaves no payment row behind.
func (s *Service) StartPayment(ctx context.Context, actorID int64, eventID uint) (PaymentStart, error) {
	e, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		return PaymentStart{}, err
	}
	if e.UserID != actorID {
		return PaymentStart{}, s.deny(ctx, actorID, "start_payment", eventID, "not the owner")
	}
	if e.Status != models.StatusApprovedWaitingPayment {
		return PaymentStart{}, ErrWrongState
	}
	p, err := s.quote(e)
	if err != nil {
		return PaymentStart{}, err
	}

	if s.TestMode() {
		p.PaymentSystem = "test"
		p.IdempotencyKey = uuid.NewString()
		saved, err := s.persistPending(ctx, p)
		if err != nil {
			return PaymentStart{}, err
		}
		return PaymentStart{Event: e, Payment: saved, Test: true}, nil
	}

	// Повторное нажатие с той же суммой переиспользует ключ: шлюз вернёт тот же платёж.
	p.IdempotencyKey = uuid.NewString()
	if prev, err := s.Store.GetPaymentByEvent(ctx, eventID); err == nil &&
		prev.Status == models.PaymentPending && prev.Amount == p.Amount && prev.IdempotencyKey != "" {
		p.IdempotencyKey = prev.IdempotencyKey
	} else if err != nil && !errors.Is(err, models.ErrNotFound) {
		return PaymentStart{}, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.GatewayTimeout)
	defer cancel()
	charge, err := s.Gateway.CreateCharge(gctx, payments.ChargeRequest{
		Amount:         p.Amount,
		Description:    fmt.Sprintf("Размещение мероприятия #%d: %s", e.ID, e.Title),
		ReturnURL:      s.ReturnURL,
		IdempotencyKey: p.IdempotencyKey,
		Metadata: map[string]string{
			"event_id": strconv.FormatUint(uint64(e.ID), 10),
			"user_id":  strconv.FormatInt(e.UserID, 10),
		},
	})
	if err != nil {
		if !errors.Is(err, payments.ErrGateway) {
			err = fmt.Errorf("%w: %v", payments.ErrGateway, err)
		}
		log.Printf("moderation: create charge for event %d: %v", eventID, err)
		return PaymentStart{}, err
	}

	ext := charge.ExternalID
	p.TransactionID = &ext
	p.PaymentSystem = s.Gateway.Name()
	saved, err := s.persistPending(ctx, p)
	if err != nil {
		return PaymentStart{}, err
	}
	log.Printf("moderation: payment %d started for event %d via %s", saved.ID, eventID, p.PaymentSystem)
	return PaymentStart{Event: e, Payment: saved, RedirectURL: charge.RedirectURL}, nil
}

func (s *Service) persistPending(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	return store.TxResult(ctx, s.Store, func(tx *store.Store) (*models.Payment, error) {
		e, err := tx.GetEventForUpdate(ctx, p.EventID)
		if err != nil {
			return nil, err
		}
		if e.Status != models.StatusApprovedWaitingPayment {
			return nil, ErrWrongState
		}
		saved, err := tx.UpsertPendingPayment(ctx, p)
		if err != nil {
			return nil, err
		}
		if saved.Status == models.PaymentCompleted {
			return nil, ErrWrongState
		}
		if e.PaymentStatus != models.PaymentPending {
			if err := tx.SetPaymentStatus(ctx, e.ID, models.PaymentPending); err != nil {
				return nil, err
			}
		}
		return saved, nil
	})
}

var confirmable = []models.EventStatus{models.StatusApprovedWaitingPayment, models.StatusPendingModeration}

// ConfirmPayment is the single transition behind both the test button and the gateway
// webhook. Exactly one caller wins; only the winner triggers the publish side effects.
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) (ConfirmResult, error) {
	if c.Source == SourceTest {
		if !s.TestMode() {
			return ConfirmResult{}, ErrTestPaymentsOff
		}
		e, err := s.Store.GetEvent(ctx, c.EventID)
		if err != nil {
			return ConfirmResult{}, err
		}
		if e.UserID != c.ActorID {
			return ConfirmResult{}, s.deny(ctx, c.ActorID, "confirm_payment", c.EventID, "not the owner")
		}
	}

	var won bool
	res, err := store.TxResult(ctx, s.Store, func(tx *store.Store) (ConfirmResult, error) {
		won = false
		var out ConfirmResult

		eventID := c.EventID
		var pay *models.Payment
		if c.TransactionID != "" {
			p, err := tx.GetPaymentByTransaction(ctx, c.TransactionID)
			if err != nil {
				return out, err
			}
			pay, eventID = p, p.EventID
		} else {
			p, err := tx.GetPaymentByEvent(ctx, eventID)
			switch {
			case err == nil:
				pay = p
			case !errors.Is(err, models.ErrNotFound):
				return out, err
			}
		}

		e, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return out, err
		}
		if e.Status == models.StatusActive {
			out.Event, out.Payment, out.AlreadyActive = e, pay, true
			return out, nil
		}

		ok, err := tx.CompareAndSetStatus(ctx, eventID, confirmable, map[string]any{
			"status":         models.StatusActive,
			"payment_status": models.PaymentCompleted,
		})
		if err != nil {
			return out, err
		}
		if !ok {
			return out, ErrWrongState
		}

		now := time.Now().UTC()
		if pay == nil {
			pay, err = s.quote(e)
			if err != nil {
				return out, err
			}
			pay.PaymentSystem = "test"
			pay.IdempotencyKey = uuid.NewString()
			pay.Status = models.PaymentCompleted
			pay.CompletedAt = &now
			if err := tx.CreatePayment(ctx, pay); err != nil {
				return out, err
			}
		} else if pay.Status != models.PaymentCompleted {
			patch := map[string]any{"status": models.PaymentCompleted, "completed_at": now}
			if c.Amount > 0 && pay.Amount == 0 {
				patch["amount"] = c.Amount
			}
			if _, err := tx.UpdatePayment(ctx, pay.ID, nil, patch); err != nil {
				return out, err
			}
		}
		if err := tx.LogModAction(ctx, c.ActorID, "payment_confirmed", eventID, string(c.Source)); err != nil {
			return out, err
		}

		if out.Event, err = tx.GetEvent(ctx, eventID); err != nil {
			return out, err
		}
		if out.Payment, err = tx.GetPaymentByEvent(ctx, eventID); err != nil {
			return out, err
		}
		won = true
		return out, nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	if !won {
		log.Printf("moderation: event %d already active, %s confirmation ignored", res.Event.ID, c.Source)
		return res, nil
	}

	log.Printf("moderation: event %d activated (%s)", res.Event.ID, c.Source)
	s.send(ctx, res.Event.UserID, notifyMessage("✅ *Оплата подтверждена.*\nМероприятие опубликовано в ленте города."))
	s.afterActivation(ctx, res.Event, res.Payment)
	return res, nil
}

func (s *Service) afterActivation(ctx context.Context, e *models.Event, p *models.Payment) {
	if s.FanOut != nil {
		s.async(ctx, "fanout", func(ctx context.Context) {
			if _, err := s.FanOut.Publish(ctx, e); err != nil {
				log.Printf("moderation: fan-out for event %d: %v", e.ID, err)
			}
		})
	}
	if s.Ledger != nil {
		s.async(ctx, "ledger:payment", func(ctx context.Context) {
			if err := s.Ledger.AppendPayment(ctx, e, p); err != nil {
				log.Printf("moderation: ledger: %v", err)
			}
		})
	}
}

// FailPayment records a gateway cancel or failure. The event status is never changed
// and a completed payment is never downgraded.
func (s *Service) FailPayment(ctx context.Context, transactionID string, status models.PaymentStatus) (*models.Payment, error) {
	if status != models.PaymentCancelled && status != models.PaymentFailed {
		return nil, fmt.Errorf("fail payment: unexpected status %q", status)
	}
	var changed bool
	p, err := store.TxResult(ctx, s.Store, func(tx *store.Store) (*models.Payment, error) {
		changed = false
		p, err := tx.GetPaymentByTransaction(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		// a replaced checkout link must not cancel the charge that superseded it
		if p.TransactionID == nil || *p.TransactionID != transactionID {
			return p, nil
		}
		ok, err := tx.UpdatePayment(ctx, p.ID, []models.PaymentStatus{models.PaymentPending}, map[string]any{"status": status})
		if err != nil {
			return nil, err
		}
		if !ok {
			return p, nil
		}
		e, err := tx.GetEventForUpdate(ctx, p.EventID)
		if err != nil {
			return nil, err
		}
		if e.PaymentStatus != models.PaymentCompleted {
			if err := tx.SetPaymentStatus(ctx, e.ID, status); err != nil {
				return nil, err
			}
		}
		changed = true
		return tx.GetPaymentByEvent(ctx, p.EventID)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		log.Printf("moderation: payment %d for event %d marked %s", p.ID, p.EventID, status)
		s.send(ctx, p.UserID, paymentFailedMessage(p.EventID))
	}
	return p, nil
}
