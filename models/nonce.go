// models/nonce.go
package models

import (
	"time"
)

// PaymentNonce is a single-use nonce issued with each 402 payment-required
// response. The expiry is communicated to the payer; enforcement is left to
// the external payment verifier. Expired rows are purged by the scheduler.
type PaymentNonce struct {
	Nonce     string    `gorm:"primaryKey;type:uuid" json:"nonce"`
	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}
