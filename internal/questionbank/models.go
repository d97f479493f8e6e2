// Package questionbank holds the reusable question catalog. Events embed
// denormalized copies at creation, so bank edits never change past events.
package questionbank

import (
	"time"

	"github.com/google/uuid"

	"certo/internal/event"
)

// Entry is one reusable question in the bank.
type Entry struct {
	ID            uuid.UUID          `json:"id"`
	Question      string             `json:"question"`
	Type          event.QuestionType `json:"type"`
	Category      event.Category     `json:"category"`
	Difficulty    event.Difficulty   `json:"difficulty"`
	Options       []string           `json:"options,omitempty"`
	CorrectAnswer string             `json:"correctAnswer"`
	Points        int                `json:"points"`
	Explanation   string             `json:"explanation,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	CreatedBy     uuid.UUID          `json:"createdBy"`
	IsActive      bool               `json:"isActive"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Snapshot returns the denormalized copy embedded into an event.
func (e *Entry) Snapshot() event.Question {
	return event.Question{
		QuestionID:    e.ID,
		Question:      e.Question,
		Type:          e.Type,
		Options:       e.Options,
		CorrectAnswer: e.CorrectAnswer,
		Points:        e.Points,
	}
}

// Filter narrows and paginates bank listings.
type Filter struct {
	Category   event.Category
	Difficulty event.Difficulty
	Type       event.QuestionType
	OnlyActive bool
	Page       int
	Limit      int
}

// Page is the bank listing envelope.
type Page struct {
	Items      []*Entry `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}
