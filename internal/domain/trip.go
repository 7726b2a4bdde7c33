// Package domain contains the core data types for the Travelogue sync core.
// It has no dependency on the document store or the HTTP layer and is
// imported by every other internal package.
//
// Field names in json tags are the document field names used on the wire and
// in the document store, so a Trip decoded from a stored document and a Trip
// encoded for the API share one shape.
package domain

import (
	"time"
)

// DateLayout is the calendar-date format used for every date-only field.
const DateLayout = "2006-01-02"

// TripStatus is the lifecycle state shown on trip cards.
type TripStatus string

const (
	TripUpcoming TripStatus = "upcoming"
	TripOngoing  TripStatus = "ongoing"
	TripFinished TripStatus = "finished"
)

// Trip is the aggregate root. Bookings, the preparation checklist and (in the
// embedded layout) daily plans live inside the trip document; expenses and
// research collections are always addressed through the trip id.
type Trip struct {
	ID          string          `json:"id" validate:"required"`
	UserID      string          `json:"userId,omitempty"`
	Title       string          `json:"title" validate:"notblank"`
	StartDate   string          `json:"startDate" validate:"required,isodate"`
	EndDate     string          `json:"endDate" validate:"required,isodate"`
	Days        int             `json:"days" validate:"gt=0"`
	CoverImage  string          `json:"coverImage" validate:"omitempty,url"`
	Status      TripStatus      `json:"status" validate:"required,oneof=upcoming ongoing finished"`
	Countdown   *int            `json:"countdown,omitempty"`
	Members     []Member        `json:"members,omitempty" validate:"omitempty,dive"`
	Plans       []DailyPlan     `json:"plans,omitempty" validate:"omitempty,dive"`
	Bookings    []Booking       `json:"bookings,omitempty" validate:"omitempty,dive"`
	Preparation []ChecklistItem `json:"preparation,omitempty" validate:"omitempty,dive"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// Member is one person in the travel party.
type Member struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"notblank"`
}

// SpanDays returns the inclusive number of calendar days between two
// YYYY-MM-DD dates, e.g. 2024-05-01..2024-05-03 is 3.
// It returns 0 when either date is malformed or end is before start.
func SpanDays(start, end string) int {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return 0
	}
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}
