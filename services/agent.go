// services/agent.go
package services

import (
	"github.com/gofiber/fiber/v2"
)

// AgentSummary is a convenience aggregate for automated callers: the live
// snapshot, a leaderboard slice, recent presses, and machine-readable
// action descriptions. Read-only.
func (s *GameService) AgentSummary(c *fiber.Ctx) error {
	snap, err := s.PeekSnapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read game state"})
	}
	leaderboard, err := s.leaderboardRows(10)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}
	presses, err := s.recentPresses(5)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch history"})
	}

	return c.JSON(fiber.Map{
		"description":   "The Button - Press to reset the timer. When it hits 0, last presser wins the pot.",
		"timer":         snap.Timer,
		"pot":           snap.Pot,
		"lastPresser":   snap.LastPresser,
		"pressCount":    snap.PressCount,
		"round":         snap.Round,
		"gameOver":      snap.GameOver,
		"leaderboard":   leaderboard,
		"recentPresses": presses,
		"actions": fiber.Map{
			"pressFree": fiber.Map{
				"method":   "POST",
				"endpoint": "/api/press",
				"body":     fiber.Map{"player": "your-identifier"},
				"cost":     "0.001 sBTC equivalent (simulated)",
			},
			"pressPaid": fiber.Map{
				"method":   "POST",
				"endpoint": "/api/press-sbtc",
				"headers":  fiber.Map{"X-PAYMENT": "signed-transaction-hex"},
				"body":     fiber.Map{"player": "your-identifier"},
				"cost":     "1000 sats real sBTC",
			},
		},
		"strategyHints": []string{
			"Press early to reset and be safe",
			"Press late for better flair colors and bragging rights",
			"Watch the timer - if no one presses, you win the pot",
			"Check the leaderboard to see top players",
			"Consider the risk vs reward based on current pot size",
		},
		"flairSystem": fiber.Map{
			"Purple (Early Bird)": "> 50s remaining",
			"Blue (Cautious)":     "40-50s remaining",
			"Green (Moderate)":    "30-40s remaining",
			"Yellow (Risk Taker)": "20-30s remaining",
			"Orange (Daredevil)":  "10-20s remaining",
			"Red (Madlad)":        "< 10s remaining",
		},
	})
}
