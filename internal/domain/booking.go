package domain

// BookingType classifies a reservation.
type BookingType string

const (
	BookingFlight    BookingType = "flight"
	BookingHotel     BookingType = "hotel"
	BookingTransport BookingType = "transport"
	BookingActivity  BookingType = "activity"
	BookingOther     BookingType = "other"
)

// Booking is a reservation stored inline in Trip.Bookings.
// It has no identity outside its parent array.
type Booking struct {
	ID             string      `json:"id" validate:"required"`
	Type           BookingType `json:"type" validate:"required,oneof=flight hotel transport activity other"`
	Title          string      `json:"title" validate:"notblank"`
	DateTime       string      `json:"dateTime,omitempty"`
	ConfirmationNo string      `json:"confirmationNo,omitempty"`
	Location       string      `json:"location,omitempty"`
	Note           string      `json:"note,omitempty"`
	IsConfirmed    bool        `json:"isConfirmed"`
}

// ChecklistItem is one entry of the preparation checklist stored inline in
// Trip.Preparation.
type ChecklistItem struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"notblank"`
	IsCompleted bool   `json:"isCompleted"`
	Category    string `json:"category,omitempty"`
}
