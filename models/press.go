// models/press.go
package models

import (
	"time"
)

// Press is one accepted button press. Rows are append-only: never mutated
// or deleted, and never re-attached to a different round.
type Press struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID     string    `gorm:"type:uuid;not null;index" json:"round_id"`
	RoundNumber int       `gorm:"not null" json:"round_number"`
	PlayerName  string    `gorm:"not null;index" json:"player_name"`
	PressedAt   time.Time `gorm:"not null;index" json:"press_time"`

	// TimerAt is the remaining time at the instant the press was accepted.
	// It drives the cosmetic tier and nothing else.
	TimerAt float64 `gorm:"not null" json:"timer_at"`

	PaymentTxID   *string `json:"payment_txid,omitempty"`
	PaymentAmount float64 `gorm:"not null;default:0" json:"payment_amount"`

	Color string `gorm:"not null" json:"color"`
	Flair string `gorm:"not null" json:"flair"`
}

// Cosmetic tiering: six contiguous buckets over [0, FullTimerSeconds],
// boundaries at 50/40/30/20/10. A value strictly above a boundary lands in
// the bucket above it (> 50 is the topmost bucket, <= 10 the bottom one).
// Display-only — never used for acceptance decisions.

// PresserColor maps remaining-time-at-press to its tier color.
func PresserColor(timerAt float64) string {
	switch {
	case timerAt > 50:
		return "#9c59d1" // purple — early presser
	case timerAt > 40:
		return "#4287f5" // blue
	case timerAt > 30:
		return "#42f5a7" // green
	case timerAt > 20:
		return "#f5e642" // yellow
	case timerAt > 10:
		return "#f5a442" // orange
	default:
		return "#f54242" // red — danger zone presser
	}
}

// FlairName maps remaining-time-at-press to its tier label.
func FlairName(timerAt float64) string {
	switch {
	case timerAt > 50:
		return "Early Bird"
	case timerAt > 40:
		return "Cautious"
	case timerAt > 30:
		return "Moderate"
	case timerAt > 20:
		return "Risk Taker"
	case timerAt > 10:
		return "Daredevil"
	default:
		return "Madlad"
	}
}
