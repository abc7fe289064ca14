package model

import (
	"encoding/json"
	"time"
)

// Profile is a traveller record of the profile service.
type Profile struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	LoyaltyTier string          `json:"loyaltyTier,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
