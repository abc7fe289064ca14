package model

import "time"

const (
	BookingStatusActive    = "ACTIVE"
	BookingStatusCancelled = "CANCELLED"
)

type BookingSummary struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TripID    string    `json:"tripId"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookingRequest is the body of create and update calls to the booking store.
type BookingRequest struct {
	UserID string  `json:"userId" validate:"required"`
	TripID string  `json:"tripId" validate:"required"`
	Price  float64 `json:"price" validate:"gte=0"`
	Status string  `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE CANCELLED"`
}
