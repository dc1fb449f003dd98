package model

import "time"

// Requester - внешний заявитель. ID непрозрачный, выдаётся вызывающей системой.
type Requester struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
