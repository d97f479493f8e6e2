// Package registration links users to events and tracks the attempt
// lifecycle: registered, completed, cancelled.
package registration

import (
	"time"

	"github.com/google/uuid"

	"certo/pkg/domerrors"
)

// Status is the registration lifecycle state.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusRegistered, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", domerrors.New(domerrors.CodeValidation, "invalid registration status")
}

// Answer records one submitted answer within an attempt.
type Answer struct {
	QuestionID uuid.UUID `json:"questionId"`
	Answer     string    `json:"answer"`
	IsCorrect  *bool     `json:"isCorrect,omitempty"`
	Points     int       `json:"points"`
}

// CertificateRef is the embedded summary of an issued certificate.
type CertificateRef struct {
	ID         uuid.UUID `json:"id"`
	IssuedDate time.Time `json:"issuedDate"`
	FileURL    string    `json:"fileUrl"`
}

// Registration is one user's relationship to one event. Cancelled rows are
// kept for analytics and can be reactivated in place.
type Registration struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	EventID          uuid.UUID       `json:"eventId"`
	Status           Status          `json:"status"`
	RegistrationDate time.Time       `json:"registrationDate"`
	Score            *float64        `json:"score"`
	Answers          []Answer        `json:"answers,omitempty"`
	StartTime        *time.Time      `json:"startTime,omitempty"`
	EndTime          *time.Time      `json:"endTime,omitempty"`
	DurationMinutes  *int            `json:"durationTaken,omitempty"`
	Certificate      *CertificateRef `json:"certificate,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Active reports whether the registration counts toward event capacity.
func (r *Registration) Active() bool {
	return r.Status != StatusCancelled
}

// Detail is an event-scoped listing row enriched for admin consumption.
type Detail struct {
	Registration
	ParticipantName  string `json:"participantName"`
	ParticipantEmail string `json:"participantEmail"`
	EventTitle       string `json:"eventTitle"`
	EventCategory    string `json:"eventCategory"`
}

// StatusCounts aggregates registrations by lifecycle state.
type StatusCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// ScoreStats aggregates graded scores. Average and Best are nil when no
// qualifying score exists.
type ScoreStats struct {
	Average *float64 `json:"average"`
	Best    *float64 `json:"best"`
	Graded  int      `json:"graded"`
}

// Aggregate combines lifecycle counts with score statistics for one
// grouping key (an event, a user, a category).
type Aggregate struct {
	Counts StatusCounts
	Scores ScoreStats
}

// TrendPoint is one day's registration count.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// LeaderboardEntry ranks one user by average completed score.
type LeaderboardEntry struct {
	UserID       uuid.UUID `json:"userId"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	AverageScore float64   `json:"averageScore"`
	Completed    int       `json:"completedEvents"`
}
