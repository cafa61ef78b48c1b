// Package focus implements the pomodoro timer as a clock-driven state
// machine. Timers hold no goroutines; callers pass the current time.
package focus

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an action does not apply to the
// timer's current status.
var ErrInvalidTransition = errors.New("invalid focus timer transition")

// Phase is the kind of interval being timed.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseWork       Phase = "work"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// Status is whether the current phase is counting down.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// Action names a user-triggered transition.
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionSkip   Action = "skip"
	ActionReset  Action = "reset"
)

// Config holds phase lengths in minutes.
type Config struct {
	WorkMinutes       int `json:"work_minutes"`
	ShortBreakMinutes int `json:"short_break_minutes"`
	LongBreakMinutes  int `json:"long_break_minutes"`
	// LongBreakEvery is how many work phases come before a long break.
	LongBreakEvery int `json:"long_break_every"`
}

// DefaultConfig returns the classic 25/5/15 cycle with a long break every
// fourth work phase.
func DefaultConfig() Config {
	return Config{WorkMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15, LongBreakEvery: 4}
}

// Normalize fills unset values with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.WorkMinutes == 0 {
		c.WorkMinutes = def.WorkMinutes
	}
	if c.ShortBreakMinutes == 0 {
		c.ShortBreakMinutes = def.ShortBreakMinutes
	}
	if c.LongBreakMinutes == 0 {
		c.LongBreakMinutes = def.LongBreakMinutes
	}
	if c.LongBreakEvery == 0 {
		c.LongBreakEvery = def.LongBreakEvery
	}
	return c
}

// Validate rejects negative or out of range values.
func (c Config) Validate() error {
	for name, minutes := range map[string]int{
		"work":        c.WorkMinutes,
		"short break": c.ShortBreakMinutes,
		"long break":  c.LongBreakMinutes,
	} {
		if minutes < 1 || minutes > 240 {
			return fmt.Errorf("%s minutes must be between 1 and 240", name)
		}
	}
	if c.LongBreakEvery < 1 || c.LongBreakEvery > 12 {
		return errors.New("long break interval must be between 1 and 12")
	}
	return nil
}

// Duration returns the configured length of phase.
func (c Config) Duration(phase Phase) time.Duration {
	switch phase {
	case PhaseWork:
		return time.Duration(c.WorkMinutes) * time.Minute
	case PhaseShortBreak:
		return time.Duration(c.ShortBreakMinutes) * time.Minute
	case PhaseLongBreak:
		return time.Duration(c.LongBreakMinutes) * time.Minute
	}
	return 0
}

// Timer is the persisted timer state.
type Timer struct {
	Config Config `json:"config"`
	Phase  Phase  `json:"phase"`
	Status Status `json:"status"`
	// Remaining is the time left while ready or paused.
	Remaining time.Duration `json:"remaining"`
	// EndsAt is when the running phase completes.
	EndsAt time.Time `json:"ends_at,omitzero"`
	// WorkPhases counts work phases ended since the last long break.
	WorkPhases int `json:"work_phases"`
}

// New returns an idle timer using cfg.
func New(cfg Config) Timer {
	return Timer{Config: cfg.Normalize(), Phase: PhaseIdle, Status: StatusIdle}
}

// RemainingAt returns the time left in the current phase at now.
func (t Timer) RemainingAt(now time.Time) time.Duration {
	if t.Status != StatusRunning {
		return t.Remaining
	}
	left := t.EndsAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Start begins a work phase from idle, or the ready phase after an advance.
func (t *Timer) Start(now time.Time) error {
	switch t.Status {
	case StatusIdle, "":
		t.Config = t.Config.Normalize()
		t.Phase = PhaseWork
		t.Remaining = t.Config.Duration(PhaseWork)
	case StatusReady:
	default:
		return fmt.Errorf("start while %s: %w", t.Status, ErrInvalidTransition)
	}
	t.run(now)
	return nil
}

// Pause freezes a running phase.
func (t *Timer) Pause(now time.Time) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("pause while %s: %w", t.Status, ErrInvalidTransition)
	}
	t.Remaining = t.RemainingAt(now)
	t.EndsAt = time.Time{}
	t.Status = StatusPaused
	return nil
}

// Resume continues a paused phase.
func (t *Timer) Resume(now time.Time) error {
	if t.Status != StatusPaused {
		return fmt.Errorf("resume while %s: %w", t.Status, ErrInvalidTransition)
	}
	t.run(now)
	return nil
}

// Skip abandons the current phase without credit and readies the next one.
func (t *Timer) Skip(now time.Time) error {
	if t.Status == StatusIdle || t.Status == "" {
		return fmt.Errorf("skip while idle: %w", ErrInvalidTransition)
	}
	t.advance()
	return nil
}

// Reset returns the timer to idle and clears the cycle.
func (t *Timer) Reset() {
	*t = New(t.Config)
}

// Tick completes the running phase when its end has passed and readies the
// next one. It returns the focus time earned, which is non-zero only for a
// completed work phase.
func (t *Timer) Tick(now time.Time) time.Duration {
	if t.Status != StatusRunning || now.Before(t.EndsAt) {
		return 0
	}
	var earned time.Duration
	if t.Phase == PhaseWork {
		earned = t.Config.Duration(PhaseWork)
	}
	t.advance()
	return earned
}

// Apply runs action at now and returns any focus time earned by the
// implicit tick that precedes it.
func (t *Timer) Apply(action Action, now time.Time) (time.Duration, error) {
	earned := t.Tick(now)
	var err error
	switch action {
	case ActionStart:
		err = t.Start(now)
	case ActionPause:
		err = t.Pause(now)
	case ActionResume:
		err = t.Resume(now)
	case ActionSkip:
		err = t.Skip(now)
	case ActionReset:
		t.Reset()
	default:
		err = fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
	}
	return earned, err
}

func (t *Timer) run(now time.Time) {
	t.EndsAt = now.Add(t.Remaining)
	t.Status = StatusRunning
}

// advance readies the phase after the current one. Every LongBreakEvery-th
// work phase is followed by a long break.
func (t *Timer) advance() {
	cfg := t.Config.Normalize()
	next := PhaseWork
	if t.Phase == PhaseWork {
		t.WorkPhases++
		next = PhaseShortBreak
		if t.WorkPhases%cfg.LongBreakEvery == 0 {
			next = PhaseLongBreak
			t.WorkPhases = 0
		}
	}
	t.Phase = next
	t.Status = StatusReady
	t.Remaining = cfg.Duration(next)
	t.EndsAt = time.Time{}
}
