// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartGameScheduler runs the background jobs: a settlement sweep so an
// abandoned round still closes promptly when nobody is polling state
// (lazy settlement on access remains the primary mechanism), and a purge of
// expired payment nonces.
func StartGameScheduler(game *GameService, payments *PaymentService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 15s: settle the current round if its countdown has expired.
	_, _ = sched.NewJob(
		gocron.DurationJob(15*time.Second),
		gocron.NewTask(func() {
			if err := game.SettleIfExpired(); err != nil {
				log.Printf("[Scheduler] settlement sweep failed: %v", err)
			}
		}),
	)

	// Every 10 minutes: drop payment nonces past their expiry.
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			purged, err := payments.PurgeExpiredNonces()
			if err != nil {
				log.Printf("[Scheduler] nonce purge failed: %v", err)
				return
			}
			if purged > 0 {
				log.Printf("🧹 Purged %d expired payment nonce(s)", purged)
			}
		}),
	)
}
