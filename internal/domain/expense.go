package domain

import "time"

// Expense is one shared cost of a trip, stored as a child resource.
// Category is free-form and may be empty. SplitWith, when present, lists
// the member ids sharing the cost.
type Expense struct {
	ID          string     `json:"id" validate:"required"`
	Date        string     `json:"date" validate:"required,isodate"`
	Category    string     `json:"category"`
	Amount      float64    `json:"amount" validate:"gt=0"`
	Currency    string     `json:"currency" validate:"notblank"`
	Description string     `json:"description" validate:"notblank"`
	Payer       string     `json:"payer,omitempty"`
	SplitWith   []string   `json:"splitWith,omitempty" validate:"omitempty,min=1,dive,notblank"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}
