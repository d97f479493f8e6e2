package event

import (
	"time"

	"github.com/google/uuid"

	"certo/pkg/domerrors"
)

// Category classifies an event's aptitude domain.
type Category string

const (
	CategoryTechnical Category = "Technical"
	CategoryLogical   Category = "Logical"
	CategoryVerbal    Category = "Verbal"
	CategoryNumerical Category = "Numerical"
	CategoryGeneral   Category = "General"
)

// Categories lists the closed category set.
func Categories() []Category {
	return []Category{CategoryTechnical, CategoryLogical, CategoryVerbal, CategoryNumerical, CategoryGeneral}
}

// ParseCategory validates a category value.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", domerrors.New(domerrors.CodeValidation, "invalid category")
}

// Difficulty classifies how hard an event is.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty value.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), nil
	}
	return "", domerrors.New(domerrors.CodeValidation, "invalid difficulty")
}

// QuestionType is the closed set of question formats.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionEssay          QuestionType = "essay"
)

// ParseQuestionType validates a question format value.
func ParseQuestionType(s string) (QuestionType, error) {
	switch QuestionType(s) {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank, QuestionEssay:
		return QuestionType(s), nil
	}
	return "", domerrors.New(domerrors.CodeValidation, "invalid question type")
}

// Question is a denormalized copy of a question-bank entry embedded in an
// event at creation time. Later edits to the bank do not affect past events.
type Question struct {
	QuestionID    uuid.UUID    `json:"questionId"`
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
	Points        int          `json:"points"`
}

// Event is a schedulable aptitude-test offering.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        Category   `json:"category"`
	Difficulty      Difficulty `json:"difficulty"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	DurationMinutes int        `json:"duration"`
	MaxParticipants int        `json:"maxParticipants"`
	// CurrentParticipants is derived on read from the active registration
	// count; it is never stored or client-settable.
	CurrentParticipants int        `json:"currentParticipants"`
	Questions           []Question `json:"questions,omitempty"`
	ImageURL            string     `json:"image"`
	IsActive            bool       `json:"isActive"`
	CreatedBy           uuid.UUID  `json:"createdBy"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Query narrows and paginates event listings.
type Query struct {
	Category   Category
	Difficulty Difficulty
	Title      string // case-insensitive partial match
	OnlyActive bool
	Page       int
	Limit      int
}

// Page is the listing envelope shared by all event list operations.
type Page struct {
	Items      []*Event `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}
