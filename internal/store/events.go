package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventsnow-bot/internal/models"
)

// CreateEvent inserts the event and its photos with positions 1..N.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event, photos []string) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		e.Photos = nil
		if err := tx.Omit(clause.Associations).Create(e).Error; err != nil {
			return err
		}
		rows := photoRows(e.ID, photos)
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		e.Photos = rows
		return nil
	})
}

func photoRows(eventID uint, fileIDs []string) []models.EventPhoto {
	rows := make([]models.EventPhoto, 0, len(fileIDs))
	for i, fid := range fileIDs {
		rows = append(rows, models.EventPhoto{EventID: eventID, FileID: fid, Position: i + 1})
	}
	return rows
}

func (s *Store) GetEvent(ctx context.Context, id uint) (*models.Event, error) {
	var e models.Event
	err := s.q(ctx).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&e, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// GetEventForUpdate reads the event with a row lock where the dialect supports one.
func (s *Store) GetEventForUpdate(ctx context.Context, id uint) (*models.Event, error) {
	var e models.Event
	if err := s.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// LiveResubmission returns a clone of fromID that has not itself been rejected.
func (s *Store) LiveResubmission(ctx context.Context, fromID uint) (*models.Event, error) {
	var e models.Event
	err := s.q(ctx).
		Where("resubmitted_from_id = ? AND status <> ?", fromID, models.StatusRejected).
		Order("id").First(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

type EventFilter struct {
	City     string
	Statuses []models.EventStatus
	OwnerID  int64
	Limit    int
	Offset   int
	// OldestFirst orders by creation ascending; the default is newest first.
	OldestFirst bool
}

func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error) {
	db := s.q(ctx).Model(&models.Event{})
	if f.City != "" {
		db = db.Where("city_slug = ?", f.City)
	}
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if f.OwnerID != 0 {
		db = db.Where("user_id = ?", f.OwnerID)
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	if f.Offset > 0 {
		db = db.Offset(f.Offset)
	}
	order := "created_at DESC, id DESC"
	if f.OldestFirst {
		order = "created_at ASC, id ASC"
	}
	var out []models.Event
	err := db.Order(order).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Find(&out).Error
	return out, err
}

// CompareAndSetStatus applies patch only when the event is currently in one of from.
// The bool reports whether this call won the transition.
func (s *Store) CompareAndSetStatus(ctx context.Context, id uint, from []models.EventStatus, patch map[string]any) (bool, error) {
	res := s.q(ctx).Model(&models.Event{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(patch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentStatus updates only the event's payment status column.
func (s *Store) SetPaymentStatus(ctx context.Context, id uint, st models.PaymentStatus) error {
	return s.q(ctx).Model(&models.Event{}).Where("id = ?", id).Update("payment_status", st).Error
}

// DeleteEvent removes the event with its photos, payment, favorites and comments.
func (s *Store) DeleteEvent(ctx context.Context, id uint) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteEvents(tx, []uint{id})
	})
}

func deleteEvents(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	for _, m := range []any{&models.EventPhoto{}, &models.PaymentCharge{}, &models.Payment{}, &models.Favorite{}, &models.Comment{}} {
		if err := tx.Where("event_id IN ?", ids).Delete(m).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", ids).Delete(&models.Event{}).Error
}

// ---------- photos ----------

func (s *Store) ListPhotos(ctx context.Context, eventID uint) ([]models.EventPhoto, error) {
	var out []models.EventPhoto
	err := s.q(ctx).Where("event_id = ?", eventID).Order("position").Find(&out).Error
	return out, err
}

// ReplacePhotos drops all photos of the event and stores fileIDs as positions 1..N.
func (s *Store) ReplacePhotos(ctx context.Context, eventID uint, fileIDs []string) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&models.EventPhoto{}).Error; err != nil {
			return err
		}
		rows := photoRows(eventID, fileIDs)
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// DeletePhoto removes one photo and closes the gap in positions.
func (s *Store) DeletePhoto(ctx context.Context, eventID uint, position int) error {
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("event_id = ? AND position = ?", eventID, position).Delete(&models.EventPhoto{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		var rest []models.EventPhoto
		if err := tx.Where("event_id = ?", eventID).Order("position").Find(&rest).Error; err != nil {
			return err
		}
		for i, p := range rest {
			want := i + 1
			if p.Position == want {
				continue
			}
			if err := tx.Model(&models.EventPhoto{}).Where("id = ?", p.ID).Update("position", want).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ---------- sweeps and admin tools ----------

// ArchiveExpired moves ACTIVE events whose date (or period end) is before today to ARCHIVED.
func (s *Store) ArchiveExpired(ctx context.Context, today time.Time) (int, error) {
	var active []models.Event
	if err := s.q(ctx).Select("id", "event_date", "period_end", "status").
		Where("status = ?", models.StatusActive).Find(&active).Error; err != nil {
		return 0, err
	}
	var ids []uint
	for _, e := range active {
		if e.ExpiredBy(today) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.q(ctx).Model(&models.Event{}).
		Where("id IN ? AND status = ?", ids, models.StatusActive).
		Update("status", models.StatusArchived)
	return int(res.RowsAffected), res.Error
}

func (s *Store) EventCountsByStatus(ctx context.Context) (map[models.EventStatus]int64, error) {
	var rows []struct {
		Status models.EventStatus
		N      int64
	}
	err := s.q(ctx).Model(&models.Event{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.EventStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// CountEventsSince counts events created at or after since.
func (s *Store) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.q(ctx).Model(&models.Event{}).Where("created_at >= ?", since.UTC()).Count(&n).Error
	return n, err
}

// DeleteEventsSince removes events created at or after since, with everything attached.
func (s *Store) DeleteEventsSince(ctx context.Context, since time.Time) (int, error) {
	var ids []uint
	err := s.q(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Event{}).Where("created_at >= ?", since.UTC()).Pluck("id", &ids).Error; err != nil {
			return err
		}
		return deleteEvents(tx, ids)
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
