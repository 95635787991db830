package store

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"eventsnow-bot/internal/models"
)

func (s *Store) GetPaymentByEvent(ctx context.Context, eventID uint) (*models.Payment, error) {
	var p models.Payment
	if err := s.q(ctx).Where("event_id = ?", eventID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetPaymentByTransaction resolves the current transaction id or one a newer charge replaced.
func (s *Store) GetPaymentByTransaction(ctx context.Context, txID string) (*models.Payment, error) {
	var p models.Payment
	err := s.q(ctx).Where("transaction_id = ?", txID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if err = notFound(err); !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	var c models.PaymentCharge
	if err := s.q(ctx).Where("transaction_id = ?", txID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	if err := s.q(ctx).Where("id = ?", c.PaymentID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.q(ctx).Create(p).Error
}

// UpsertPendingPayment creates the event's single payment row or resets the existing
// non-completed one to PENDING with p's charge details. A completed row is returned as is.
func (s *Store) UpsertPendingPayment(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	existing, err := s.GetPaymentByEvent(ctx, p.EventID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		p.Status = models.PaymentPending
		if err := s.q(ctx).Create(p).Error; err != nil {
			return nil, err
		}
		return p, nil
	case err != nil:
		return nil, err
	}
	if existing.Status == models.PaymentCompleted {
		return existing, nil
	}
	if prev := existing.TransactionID; prev != nil && *prev != "" && (p.TransactionID == nil || *p.TransactionID != *prev) {
		c := models.PaymentCharge{PaymentID: existing.ID, EventID: existing.EventID, TransactionID: *prev}
		if err := s.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
			return nil, err
		}
	}
	patch := map[string]any{
		"amount":          p.Amount,
		"status":          models.PaymentPending,
		"payment_system":  p.PaymentSystem,
		"transaction_id":  p.TransactionID,
		"idempotency_key": p.IdempotencyKey,
		"package_daily":   p.PackageDaily,
		"num_posts":       p.NumPosts,
		"package_period":  p.PackagePeriod,
		"num_days":        p.NumDays,
		"category":        p.Category,
		"pricing_model":   p.PricingModel,
	}
	if err := s.q(ctx).Model(&models.Payment{}).Where("id = ?", existing.ID).Updates(patch).Error; err != nil {
		return nil, err
	}
	return s.GetPaymentByEvent(ctx, p.EventID)
}

// UpdatePayment applies patch when the payment is in one of from; the bool reports a match.
func (s *Store) UpdatePayment(ctx context.Context, id uint, from []models.PaymentStatus, patch map[string]any) (bool, error) {
	db := s.q(ctx).Model(&models.Payment{}).Where("id = ?", id)
	if len(from) > 0 {
		db = db.Where("status IN ?", from)
	}
	res := db.Updates(patch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
