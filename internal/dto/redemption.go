package dto

import "time"

// RedeemPointsRequest submits one redemption batch for the acting user.
type RedeemPointsRequest struct {
	// PreviousRedeemedPoints is the redeemed total the client saw when rendering the form.
	PreviousRedeemedPoints *int             `json:"previousRedeemedPoints" validate:"omitempty,min=0"`
	Lines                  []RedemptionLine `json:"lines" validate:"required,dive"`
}

// RedemptionLine requests points for a single event.
type RedemptionLine struct {
	EventID string `json:"eventId" validate:"required"`
	Points  int    `json:"points"`
}

// FieldError describes one validation failure. Line is nil for batch-level messages.
type FieldError struct {
	Line    *int   `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RedemptionEventItem is an open event listed in the overview.
type RedemptionEventItem struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Date          time.Time `json:"date"`
	RedeemEndDate time.Time `json:"redeemEndDate"`
	Step          int       `json:"step"`
}

// RedemptionOverview is the state a user needs to fill in a redemption batch.
type RedemptionOverview struct {
	AvailablePoints int                   `json:"availablePoints"`
	RedeemedPoints  int                   `json:"redeemedPoints"`
	Events          []RedemptionEventItem `json:"events"`
}
