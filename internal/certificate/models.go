// Package certificate records issued certificates: one per (user, event),
// backed by an uploaded file in the object store.
package certificate

import (
	"time"

	"github.com/google/uuid"
)

type Certificate struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"userId"`
	EventID       uuid.UUID  `json:"eventId"`
	Score         float64    `json:"score"`
	IssuedDate    time.Time  `json:"issuedDate"`
	FileURL       string     `json:"fileUrl"`
	IsRevoked     bool       `json:"isRevoked"`
	RevokedDate   *time.Time `json:"revokedDate,omitempty"`
	RevokedReason string     `json:"revokedReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
