// models/round.go
package models

import (
	"time"
)

const (
	RoundStatusPending = "pending" // created, no press yet — countdown not running
	RoundStatusOpen    = "open"    // countdown running, resets on each accepted press
	RoundStatusSettled = "settled" // terminal: pot awarded, presses rejected
)

// FullTimerSeconds is the nominal countdown length. Every accepted press
// resets the remaining time to this value.
const FullTimerSeconds = 60.0

// Round is one complete play of the game, from first press to settlement.
// Exactly one non-settled round exists at any time (enforced by the
// round-factory path in GameService).
type Round struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	RoundNumber int    `gorm:"uniqueIndex;not null" json:"round_number"`
	Status      string `gorm:"not null;default:'pending';index" json:"status"`

	// StartedAt/LastPressAt/LastPresser are nil until the first accepted press.
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LastPressAt *time.Time `json:"last_press_at,omitempty"`
	LastPresser *string    `json:"last_presser,omitempty"`

	TimerSeconds float64 `gorm:"not null" json:"timer_seconds"`
	Pot          float64 `gorm:"not null;default:0" json:"pot"`
	PressCount   int     `gorm:"not null;default:0" json:"press_count"`

	// Set by settlement only; immutable afterwards.
	Winner  *string    `json:"winner,omitempty"`
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Archived flags the round as exported to R2 by the archive worker.
	Archived bool `gorm:"not null;default:false;index" json:"archived"`

	// Version backs the optimistic compare-and-swap on round updates:
	// every guarded UPDATE checks and increments it.
	Version int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemainingAt computes the countdown left at the given instant, from
// persisted fields alone. Full budget while pending, clamped to >= 0 while
// open, zero once settled.
func (r *Round) RemainingAt(now time.Time) float64 {
	switch r.Status {
	case RoundStatusPending:
		return r.TimerSeconds
	case RoundStatusSettled:
		return 0
	}
	if r.LastPressAt == nil {
		return r.TimerSeconds
	}
	remaining := r.TimerSeconds - now.Sub(*r.LastPressAt).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
