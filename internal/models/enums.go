package models

import "errors"

var ErrNotFound = errors.New("not found")

type Category string

const (
	CategoryExhibition  Category = "EXHIBITION"
	CategoryMasterclass Category = "MASTERCLASS"
	CategoryConcert     Category = "CONCERT"
	CategoryPerformance Category = "PERFORMANCE"
	CategoryLecture     Category = "LECTURE"
	CategoryOther       Category = "OTHER"
)

// Categories in menu order.
var Categories = []Category{
	CategoryExhibition,
	CategoryMasterclass,
	CategoryConcert,
	CategoryPerformance,
	CategoryLecture,
	CategoryOther,
}

func (c Category) IsValid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// UsesPeriod reports whether events of the category are scheduled as a date range.
func (c Category) UsesPeriod() bool { return c == CategoryExhibition }

type EventStatus string

const (
	StatusDraft                  EventStatus = "draft"
	StatusPendingModeration      EventStatus = "pending_moderation"
	StatusApprovedWaitingPayment EventStatus = "approved_waiting_payment"
	StatusActive                 EventStatus = "active"
	StatusArchived               EventStatus = "archived"
	StatusRejected               EventStatus = "rejected"
)

func (s EventStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingModeration, StatusApprovedWaitingPayment,
		StatusActive, StatusArchived, StatusRejected:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

type PricingModel string

const (
	PricingDaily  PricingModel = "daily"
	PricingPeriod PricingModel = "period"
)

func (m PricingModel) IsValid() bool { return m == PricingDaily || m == PricingPeriod }

type UserRole string

const (
	RoleResident  UserRole = "resident"
	RoleOrganizer UserRole = "organizer"
	RoleAdmin     UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	return r == RoleResident || r == RoleOrganizer || r == RoleAdmin
}

type CityStatus string

const (
	CityActive     CityStatus = "active"
	CityComingSoon CityStatus = "coming_soon"
)

func (s CityStatus) IsValid() bool { return s == CityActive || s == CityComingSoon }
