package store

import (
	"context"

	"gorm.io/gorm/clause"

	"eventsnow-bot/internal/models"
)

func (s *Store) AddFavorite(ctx context.Context, userID int64, eventID uint) error {
	return s.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Favorite{UserID: userID, EventID: eventID}).Error
}

func (s *Store) RemoveFavorite(ctx context.Context, userID int64, eventID uint) error {
	return s.q(ctx).Where("user_id = ? AND event_id = ?", userID, eventID).Delete(&models.Favorite{}).Error
}

func (s *Store) IsFavorite(ctx context.Context, userID int64, eventID uint) (bool, error) {
	var n int64
	err := s.q(ctx).Model(&models.Favorite{}).Where("user_id = ? AND event_id = ?", userID, eventID).Count(&n).Error
	return n > 0, err
}

// ListFavorites returns the user's favorites that are still ACTIVE.
func (s *Store) ListFavorites(ctx context.Context, userID int64) ([]models.Event, error) {
	var out []models.Event
	err := s.q(ctx).
		Joins("JOIN favorites ON favorites.event_id = events.id").
		Where("favorites.user_id = ? AND events.status = ?", userID, models.StatusActive).
		Order("favorites.added_at DESC").
		Find(&out).Error
	return out, err
}

func (s *Store) AddComment(ctx context.Context, c *models.Comment) error {
	return s.q(ctx).Create(c).Error
}

func (s *Store) ListComments(ctx context.Context, eventID uint, limit int) ([]models.Comment, error) {
	var out []models.Comment
	db := s.q(ctx).Where("event_id = ?", eventID).Order("created_at DESC, id DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	return out, db.Find(&out).Error
}

func (s *Store) AddFeedback(ctx context.Context, f *models.Feedback) error {
	return s.q(ctx).Create(f).Error
}

func (s *Store) LogModAction(ctx context.Context, actorID int64, action string, eventID uint, details string) error {
	return s.q(ctx).Create(&models.ModAction{ActorID: actorID, Action: action, EventID: eventID, Details: details}).Error
}

func (s *Store) ListModActions(ctx context.Context, eventID uint) ([]models.ModAction, error) {
	var out []models.ModAction
	return out, s.q(ctx).Where("event_id = ?", eventID).Order("id").Find(&out).Error
}
