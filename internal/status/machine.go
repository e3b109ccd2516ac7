// Package status derives a story's verification status from its distinct
// source count and the time elapsed since it was first reported.
package status

import (
	"time"

	"NewsDesk/internal/domain"
)

const (
	DefaultBreakingWindow = 30 * time.Minute
	// BreakingLevel is the distinct source count at which a story stops
	// developing.
	BreakingLevel = 3
)

// Transition is the result of re-evaluating a story.
type Transition struct {
	From    domain.Status
	To      domain.Status
	Changed bool
}

// Derive is the pure status rule. Negative elapsed time is treated as zero.
func Derive(level int, elapsed, window time.Duration) domain.Status {
	if elapsed < 0 {
		elapsed = 0
	}
	switch {
	case level >= BreakingLevel && elapsed >= window:
		return domain.StatusVerified
	case level >= BreakingLevel:
		return domain.StatusBreaking
	case level == 2:
		return domain.StatusDeveloping
	default:
		return domain.StatusMonitoring
	}
}

// Next recomputes the status from scratch. The previous status is only
// consulted to keep a VERIFIED story from returning to BREAKING when an
// earlier-published member lowers first_seen or the clock moves backwards.
func Next(prev domain.Status, level int, elapsed, window time.Duration) Transition {
	to := Derive(level, elapsed, window)
	if prev == domain.StatusVerified && to == domain.StatusBreaking {
		to = domain.StatusVerified
	}
	return Transition{From: prev, To: to, Changed: prev != to}
}

// Machine binds the breaking window.
type Machine struct {
	window time.Duration
}

// NewMachine returns a Machine; a non-positive window falls back to the default.
func NewMachine(window time.Duration) *Machine {
	if window <= 0 {
		window = DefaultBreakingWindow
	}
	return &Machine{window: window}
}

// Window returns the breaking window.
func (m *Machine) Window() time.Duration { return m.window }

// Apply recomputes s.Status at now and stores the result on the story.
func (m *Machine) Apply(s *domain.Story, now time.Time) Transition {
	t := Next(s.Status, s.VerificationLevel, now.Sub(s.FirstSeen), m.window)
	s.Status = t.To
	return t
}

// Evaluate is Apply without mutating the story.
func (m *Machine) Evaluate(s domain.Story, now time.Time) Transition {
	return Next(s.Status, s.VerificationLevel, now.Sub(s.FirstSeen), m.window)
}
