// models/player.go
package models

import (
	"time"
)

// Player is a participant identified by a free-form, case-sensitive name.
// Rows are created lazily on first press and never deleted.
type Player struct {
	Name string `gorm:"primaryKey" json:"name"`

	// WalletAddress is first-write-wins: a later press without a wallet
	// never clears an address recorded earlier.
	WalletAddress *string `json:"wallet_address,omitempty"`

	TotalPresses int     `gorm:"not null;default:0" json:"total_presses"`
	TotalSpent   float64 `gorm:"not null;default:0" json:"total_spent"`

	// TotalWon is credited by settlement only, exactly once per round won.
	TotalWon float64 `gorm:"not null;default:0" json:"total_won"`

	FirstSeen time.Time `gorm:"not null" json:"first_seen"`
	LastSeen  time.Time `gorm:"not null" json:"last_seen"`
}
