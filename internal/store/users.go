package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eventsnow-bot/internal/models"
)

type TouchInput struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	// Role is only applied when it upgrades a resident.
	Role models.UserRole
	// CitySlug is set on first contact only; SetUserCity changes it later.
	CitySlug string
}

// TouchUser upserts the user keyed by telegram id and stamps last_seen_at.
func (s *Store) TouchUser(ctx context.Context, in TouchInput) (*models.User, error) {
	now := time.Now().UTC()
	role := in.Role
	if role == "" {
		role = models.RoleResident
	}
	u := models.User{
		TelegramID: in.TelegramID,
		Username:   in.Username,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Role:       role,
		CitySlug:   in.CitySlug,
		LastSeenAt: &now,
	}
	update := []string{"username", "first_name", "last_name", "last_seen_at", "updated_at"}
	err := s.q(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&u).Error
	if err != nil {
		return nil, err
	}
	if role != models.RoleResident {
		if err := s.q(ctx).Model(&models.User{}).
			Where("telegram_id = ? AND role = ?", in.TelegramID, models.RoleResident).
			Update("role", role).Error; err != nil {
			return nil, err
		}
	}
	return s.GetUser(ctx, in.TelegramID)
}

func (s *Store) GetUser(ctx context.Context, tgID int64) (*models.User, error) {
	var u models.User
	if err := s.q(ctx).Where("telegram_id = ?", tgID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) SetUserCity(ctx context.Context, tgID int64, city string) error {
	res := s.q(ctx).Model(&models.User{}).Where("telegram_id = ?", tgID).Update("city_slug", city)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListCityRecipients returns users of the city who have interacted with the bot.
func (s *Store) ListCityRecipients(ctx context.Context, city string) ([]models.User, error) {
	var out []models.User
	err := s.q(ctx).
		Where("city_slug = ? AND last_seen_at IS NOT NULL", city).
		Order("id").
		Find(&out).Error
	return out, err
}

type UserStats struct {
	Total     int64
	NewToday  int64
	Active7d  int64
	Active30d int64
	Recent    []models.User
}

// UserStats counts users by registration and last activity relative to now.
func (s *Store) UserStats(ctx context.Context, now time.Time, recentLimit int) (UserStats, error) {
	now = now.UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var st UserStats

	count := func(scope func(*gorm.DB) *gorm.DB, dst *int64) error {
		return scope(s.q(ctx).Model(&models.User{})).Count(dst).Error
	}
	if err := count(func(db *gorm.DB) *gorm.DB { return db }, &st.Total); err != nil {
		return st, err
	}
	if err := count(func(db *gorm.DB) *gorm.DB { return db.Where("created_at >= ?", todayStart) }, &st.NewToday); err != nil {
		return st, err
	}
	if err := count(func(db *gorm.DB) *gorm.DB {
		return db.Where("last_seen_at IS NOT NULL AND last_seen_at >= ?", now.AddDate(0, 0, -7))
	}, &st.Active7d); err != nil {
		return st, err
	}
	if err := count(func(db *gorm.DB) *gorm.DB {
		return db.Where("last_seen_at IS NOT NULL AND last_seen_at >= ?", now.AddDate(0, 0, -30))
	}, &st.Active30d); err != nil {
		return st, err
	}
	if recentLimit > 0 {
		if err := s.q(ctx).Where("last_seen_at IS NOT NULL").
			Order("last_seen_at DESC").Limit(recentLimit).Find(&st.Recent).Error; err != nil {
			return st, err
		}
	}
	return st, nil
}
