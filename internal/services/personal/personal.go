// Package personal defines the private, per-owner records kept in local
// storage: tasks, task lists, reflections, planner events, settings, and
// the focus accumulator.
package personal

import (
	"time"

	"github.com/louisbranch/taskflow/internal/services/personal/focus"
	"github.com/louisbranch/taskflow/internal/services/sharedlist"
)

// DateLayout is the calendar-day key format.
const DateLayout = time.DateOnly

// Task is a private task.
type Task struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Completed   bool                `json:"completed"`
	Priority    sharedlist.Priority `json:"priority"`
	DueDate     string              `json:"due_date,omitempty"`
	Project     string              `json:"project,omitempty"`
	ListID      string              `json:"list_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TaskList is a private grouping tag used to filter tasks.
type TaskList struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reflection is the journal entry for one calendar day.
type Reflection struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	Accomplishments string    `json:"accomplishments"`
	Challenges      string    `json:"challenges"`
	Insights        string    `json:"insights"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PlannerEvent is a time block on the daily planner. Start and End are
// HH:MM wall-clock times on Date.
type PlannerEvent struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// OnboardingFlags lists the onboarding steps a user can complete.
var OnboardingFlags = []string{"welcome", "tasks", "focus", "planner", "reflections", "assistant", "shared_lists"}

// Settings are the owner's preferences.
type Settings struct {
	Theme      Theme           `json:"theme"`
	Onboarding map[string]bool `json:"onboarding"`
	Focus      focus.Config    `json:"focus"`
}

// DefaultSettings returns the settings of an owner who never saved any.
func DefaultSettings() Settings {
	return Settings{Theme: ThemeLight, Onboarding: map[string]bool{}, Focus: focus.DefaultConfig()}
}

// FocusState is the owner's timer plus the accumulated completed focus time.
type FocusState struct {
	Timer        focus.Timer      `json:"timer"`
	TotalSeconds int64            `json:"total_seconds"`
	DailySeconds map[string]int64 `json:"daily_seconds"`
}

// NewFocusState returns an idle timer with no focus time.
func NewFocusState(cfg focus.Config) FocusState {
	return FocusState{Timer: focus.New(cfg), DailySeconds: map[string]int64{}}
}

// Credit adds earned focus time to the totals for the day of at.
func (s *FocusState) Credit(earned time.Duration, at time.Time) {
	if earned <= 0 {
		return
	}
	seconds := int64(earned / time.Second)
	s.TotalSeconds += seconds
	if s.DailySeconds == nil {
		s.DailySeconds = map[string]int64{}
	}
	s.DailySeconds[at.UTC().Format(DateLayout)] += seconds
}
