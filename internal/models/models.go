package models

import (
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID         uint     `gorm:"primaryKey"`
	TelegramID int64    `gorm:"uniqueIndex;not null"`
	Username   string   `gorm:"size:255"`
	FirstName  string   `gorm:"size:255"`
	LastName   string   `gorm:"size:255"`
	Role       UserRole `gorm:"size:20;default:resident"`
	CitySlug   string   `gorm:"size:50;index:idx_users_city_seen,priority:1"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// LastSeenAt is nil until the user actively interacts with the bot.
	LastSeenAt *time.Time `gorm:"index:idx_users_city_seen,priority:2"`
}

func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return "id" + strconv.FormatInt(u.TelegramID, 10)
}

type Event struct {
	ID       uint     `gorm:"primaryKey"`
	UserID   int64    `gorm:"not null;index"` // organizer telegram id
	CitySlug string   `gorm:"size:50;not null;index:idx_events_city_status,priority:1"`
	Title    string   `gorm:"size:255;not null"`
	Category Category `gorm:"size:20;not null"`

	Description string `gorm:"type:text"`
	Contact     string `gorm:"size:255"`
	Location    string `gorm:"size:500"`

	// Either PriceAdmission or AdmissionPriceJSON is set, never both.
	PriceAdmission     *float64
	AdmissionPriceJSON datatypes.JSONMap `gorm:"column:admission_price_json"`
	FreeKidsUptoAge    *int
	RejectReason       *string `gorm:"type:text"`

	// daily shape
	EventDate      *time.Time
	EventTimeStart string `gorm:"size:5"`
	EventTimeEnd   string `gorm:"size:5"`

	// period shape
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	WorkingHoursStart string `gorm:"size:5"`
	WorkingHoursEnd   string `gorm:"size:5"`

	Status        EventStatus   `gorm:"size:32;not null;default:draft;index:idx_events_city_status,priority:2"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:pending"`

	ResubmittedFromID *uint `gorm:"index"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Photos []EventPhoto `gorm:"constraint:OnDelete:CASCADE"`
}

// IsPeriod reports whether the event uses the date-range scheduling shape.
func (e Event) IsPeriod() bool {
	return e.PeriodStart != nil && e.PeriodEnd != nil
}

// ExpiredBy reports whether the last scheduled day is strictly before today.
func (e Event) ExpiredBy(today time.Time) bool {
	day := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	t := day(today)
	if e.EventDate != nil && day(*e.EventDate).Before(t) {
		return true
	}
	return e.PeriodEnd != nil && day(*e.PeriodEnd).Before(t)
}

// TimeRange returns start/end times of whichever scheduling shape is populated.
func (e Event) TimeRange() (string, string) {
	if e.IsPeriod() {
		return e.WorkingHoursStart, e.WorkingHoursEnd
	}
	return e.EventTimeStart, e.EventTimeEnd
}

// TierPrices decodes the tiered admission map. Nil when the event uses a flat price.
func (e Event) TierPrices() map[string]float64 {
	if len(e.AdmissionPriceJSON) == 0 {
		return nil
	}
	out := make(map[string]float64, len(e.AdmissionPriceJSON))
	for k, v := range e.AdmissionPriceJSON {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		}
	}
	return out
}

type Payment struct {
	ID      uint  `gorm:"primaryKey"`
	UserID  int64 `gorm:"not null;index"`
	EventID uint  `gorm:"not null;uniqueIndex"`

	Category     Category     `gorm:"size:20;not null"`
	PricingModel PricingModel `gorm:"size:10;not null"`

	PackageDaily  string `gorm:"size:50"`
	NumPosts      int
	PackagePeriod string `gorm:"size:50"`
	NumDays       int

	Amount float64       `gorm:"not null"`
	Status PaymentStatus `gorm:"size:20;not null;default:pending"`

	PaymentSystem  string  `gorm:"size:50"`
	TransactionID  *string `gorm:"size:255;uniqueIndex"`
	IdempotencyKey string  `gorm:"size:64"`

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// PaymentCharge keeps a gateway transaction id that a newer charge replaced, so a late
// webhook for the old checkout link still resolves to its payment.
type PaymentCharge struct {
	ID            uint   `gorm:"primaryKey"`
	PaymentID     uint   `gorm:"not null;index"`
	EventID       uint   `gorm:"not null;index"`
	TransactionID string `gorm:"size:255;not null;uniqueIndex"`
	CreatedAt     time.Time
}

type EventPhoto struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   uint   `gorm:"not null;uniqueIndex:uq_event_photos_event_pos,priority:1"`
	FileID    string `gorm:"size:255;not null"`
	Position  int    `gorm:"not null;default:1;uniqueIndex:uq_event_photos_event_pos,priority:2"`
	CreatedAt time.Time
}

type Favorite struct {
	UserID  int64     `gorm:"primaryKey;autoIncrement:false"`
	EventID uint      `gorm:"primaryKey;autoIncrement:false;index"`
	AddedAt time.Time `gorm:"autoCreateTime"`
}

type Comment struct {
	ID        uint   `gorm:"primaryKey"`
	EventID   uint   `gorm:"not null;index"`
	UserID    int64  `gorm:"not null;index"`
	Text      string `gorm:"type:text;not null"`
	Rating    *int
	CreatedAt time.Time
}

type Feedback struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"not null;index"`
	Message   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (Feedback) TableName() string { return "feedback" }

// ModAction is an audit row for moderation decisions and permission denials.
type ModAction struct {
	ID        uint      `gorm:"primaryKey"`
	ActorID   int64     `gorm:"index"`
	Action    string    `gorm:"size:50"`
	EventID   uint      `gorm:"index"`
	Details   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every persisted model, in dependency order, for migrations.
func All() []any {
	return []any{&User{}, &Event{}, &EventPhoto{}, &Payment{}, &PaymentCharge{}, &Favorite{}, &Comment{}, &Feedback{}, &ModAction{}}
}
