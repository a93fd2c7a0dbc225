package services

import (
	"log"
	"time"

	"button-game-system/models"
	"button-game-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// PressCostSats is the real-world price of one paid press.
	PressCostSats = 1000

	// PressCostSBTC is the same amount expressed in sBTC, the unit the pot
	// is accounted in.
	PressCostSBTC = float64(PressCostSats) / 100_000_000

	// SBTCContract is the sBTC token contract on mainnet.
	SBTCContract = "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-sbtc"

	// MaxPaidNameLength allows a full wallet address as the identifier.
	MaxPaidNameLength = 42

	// nonceTTL is how long an issued payment nonce stays valid. The expiry
	// is communicated to the payer; enforcement sits with the verifier.
	nonceTTL = 5 * time.Minute
)

// PaymentService owns the paid press path: x402-style discovery, the 402
// payment-required flow, and verifier-confirmed press recording.
type PaymentService struct {
	DB              *gorm.DB
	Game            *GameService
	Verifier        *VerifierClient
	TreasuryAddress string
}

func NewPaymentService(db *gorm.DB, game *GameService, verifier *VerifierClient, treasuryAddress string) *PaymentService {
	return &PaymentService{
		DB:              db,
		Game:            game,
		Verifier:        verifier,
		TreasuryAddress: treasuryAddress,
	}
}

// Discovery describes the paid endpoint in x402 form. No mutation.
func (s *PaymentService) Discovery(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"x402Version": 1,
		"name":        "The Button - sBTC Edition",
		"description": "Press to reset the 60-second timer using sBTC. Last presser wins the entire pot when timer hits zero!",
		"accepts": []fiber.Map{{
			"scheme":            "exact",
			"network":           "stacks",
			"maxAmountRequired": PressCostSats,
			"resource":          "/api/press-sbtc",
			"description":       "Press The Button with real sBTC - reset timer, compete for the pot",
			"mimeType":          "application/json",
			"payTo":             s.TreasuryAddress,
			"maxTimeoutSeconds": 300,
			"asset":             "sBTC",
			"outputSchema": fiber.Map{
				"input": fiber.Map{"type": "http", "method": "POST", "bodyType": "json"},
				"output": fiber.Map{
					"type": "object",
					"properties": fiber.Map{
						"success": fiber.Map{"type": "boolean"},
						"timer":   fiber.Map{"type": "number"},
						"color":   fiber.Map{"type": "string"},
						"flair":   fiber.Map{"type": "string"},
						"txId":    fiber.Map{"type": "string"},
						"pot":     fiber.Map{"type": "number"},
						"round":   fiber.Map{"type": "number"},
					},
				},
			},
		}},
	})
}

// WellKnown serves the /.well-known/x402.json discovery document.
func (s *PaymentService) WellKnown(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"x402Version": 1,
		"name":        "The Button",
		"description": "Press to reset the timer. When it hits 0, last presser wins the pot.",
		"endpoints": []fiber.Map{{
			"path":        "/api/press-sbtc",
			"method":      "POST",
			"asset":       "sBTC",
			"amount":      PressCostSats,
			"description": "Press The Button with real sBTC",
		}},
	})
}

// PressPaid handles the paid play mode. Without an X-PAYMENT header it
// answers 402 with machine-readable payment requirements (amount, payTo,
// single-use nonce, expiry) plus a round snapshot so the payer can judge
// whether pressing is still worthwhile. With a header, the artifact goes to
// the verifier first — only a confirmed success touches any game state.
func (s *PaymentService) PressPaid(c *fiber.Ctx) error {
	payment := c.Get("X-PAYMENT")

	if payment == "" {
		return s.paymentRequired(c)
	}

	var input struct {
		Player        string `json:"player"`
		WalletAddress string `json:"walletAddress"`
	}
	_ = c.BodyParser(&input)
	name := utils.SanitizePlayerName(input.Player, MaxPaidNameLength)
	var wallet *string
	if input.WalletAddress != "" {
		wallet = &input.WalletAddress
	}

	// Reject on game state before spending the verifier call.
	snap, err := s.Game.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "failed to read game state"})
	}
	if snap.GameOver {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Game over! Start a new round."})
	}

	// Exactly one verifier call per attempt; no local state is touched
	// until it succeeds.
	txid, err := s.Verifier.BroadcastTransaction(c.UserContext(), payment)
	if err != nil {
		log.Printf("❌ Payment verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Payment failed: " + err.Error()})
	}

	out, err := s.Game.attemptPress(name, wallet, PressCostSBTC, &txid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "press failed"})
	}
	if !out.Accepted {
		// Known gap: the payment was captured by the verifier but the round
		// expired before the press could be recorded. Surfaced, not patched.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":          false,
			"error":            out.Reason,
			"payment_captured": true,
			"txId":             txid,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"timer":   models.FullTimerSeconds,
		"color":   out.Color,
		"flair":   out.Flair,
		"txId":    txid,
		"mode":    "sbtc",
		"pot":     out.Pot,
		"round":   out.RoundNumber,
	})
}

// paymentRequired issues the 402 response with a fresh single-use nonce.
// The nonce row is the only write on this path; game state is read-only.
func (s *PaymentService) paymentRequired(c *fiber.Ctx) error {
	now := s.Game.Clock.Now().UTC()
	nonce := models.PaymentNonce{
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(nonceTTL),
	}
	if err := s.DB.Create(&nonce).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue payment nonce"})
	}

	snap, err := s.Game.PeekSnapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read game state"})
	}

	return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"maxAmountRequired": PressCostSats,
		"resource":          "/api/press-sbtc",
		"payTo":             s.TreasuryAddress,
		"network":           "mainnet",
		"nonce":             nonce.Nonce,
		"expiresAt":         nonce.ExpiresAt.Format(time.RFC3339),
		"tokenType":         "sBTC",
		"tokenContract":     SBTCContract,
		"pricing":           fiber.Map{"type": "fixed", "tier": "standard"},
		"description":       "Press The Button - reset timer, compete for the pot!",
		"instructions":      "Send 1000 sats of sBTC, include signed tx hex in X-PAYMENT header",
		"gameState": fiber.Map{
			"timer":       snap.Timer,
			"pot":         snap.Pot,
			"round":       snap.Round,
			"lastPresser": snap.LastPresser,
			"gameOver":    snap.GameOver,
		},
	})
}

// PurgeExpiredNonces deletes nonce rows past their expiry. Called by the
// scheduler.
func (s *PaymentService) PurgeExpiredNonces() (int64, error) {
	res := s.DB.Where("expires_at < ?", s.Game.Clock.Now().UTC()).Delete(&models.PaymentNonce{})
	return res.RowsAffected, res.Error
}
