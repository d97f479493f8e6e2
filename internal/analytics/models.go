// Package analytics derives admin-facing reporting from data owned by the
// identity, event and registration components. It stores nothing itself.
package analytics

import (
	"fmt"

	"github.com/google/uuid"

	"certo/internal/event"
	"certo/internal/identity"
	"certo/internal/registration"
)

// Totals are the headline counters shared by the dashboard and the global
// analytics view.
type Totals struct {
	Users                  int `json:"totalUsers"`
	Events                 int `json:"totalEvents"`
	Registrations          int `json:"totalRegistrations"`
	ActiveEvents           int `json:"activeEvents"`
	CompletedRegistrations int `json:"completedRegistrations"`
}

// DashboardSummary backs the admin landing page.
type DashboardSummary struct {
	Totals       Totals           `json:"totals"`
	RecentUsers  []*identity.User `json:"recentUsers"`
	RecentEvents []*event.Event   `json:"recentEvents"`
}

// GlobalAnalytics extends the totals with distribution breakdowns and the
// trailing registration trend.
type GlobalAnalytics struct {
	Totals             Totals                    `json:"totals"`
	EventsByCategory   map[event.Category]int    `json:"eventsByCategory"`
	EventsByDifficulty map[event.Difficulty]int  `json:"eventsByDifficulty"`
	RegistrationTrend  []registration.TrendPoint `json:"registrationTrend"`
}

// EventPerformance reports one event's registration outcomes.
type EventPerformance struct {
	EventID            uuid.UUID `json:"eventId"`
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	TotalRegistrations int       `json:"totalRegistrations"`
	Completed          int       `json:"completed"`
	Cancelled          int       `json:"cancelled"`
	AverageScore       *float64  `json:"averageScore"`
	CompletionRate     string    `json:"completionRate"`
}

// UserPerformance reports one user's outcomes across events.
type UserPerformance struct {
	UserID         uuid.UUID `json:"userId"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	Total          int       `json:"totalRegistrations"`
	Completed      int       `json:"completed"`
	Cancelled      int       `json:"cancelled"`
	AverageScore   *float64  `json:"averageScore"`
	BestScore      *float64  `json:"bestScore"`
	CompletionRate string    `json:"completionRate"`
}

// CategoryPerformance rolls outcomes up per event category.
type CategoryPerformance struct {
	Category       string   `json:"category"`
	Events         int      `json:"events"`
	Participants   int      `json:"participants"`
	Completed      int      `json:"completed"`
	AverageScore   *float64 `json:"averageScore"`
	CompletionRate string   `json:"completionRate"`
}

// CompletionRate formats completed/total as a percentage with two
// decimals, "0.00" when the denominator is zero.
func CompletionRate(completed, total int) string {
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(completed)/float64(total)*100)
}
