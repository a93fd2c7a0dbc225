// workers/round_archive_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"button-game-system/models"
	"button-game-system/utils"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// RoundArchiver exports settled rounds to R2 as immutable JSON summaries.
type RoundArchiver struct {
	DB *gorm.DB
}

func NewRoundArchiver(db *gorm.DB) *RoundArchiver {
	return &RoundArchiver{DB: db}
}

// roundExport is the archived shape: the closed round facts plus its full
// press ledger.
type roundExport struct {
	RoundNumber int            `json:"round_number"`
	Winner      *string        `json:"winner,omitempty"`
	Pot         float64        `json:"pot"`
	PressCount  int            `json:"press_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	Presses     []models.Press `json:"presses"`
}

// ArchiveSettledRounds uploads every settled, not-yet-archived round and
// flags it. Returns the number of rounds exported.
func (a *RoundArchiver) ArchiveSettledRounds(ctx context.Context) (int, error) {
	var rounds []models.Round
	if err := a.DB.Where("status = ? AND archived = ?", models.RoundStatusSettled, false).
		Order("round_number ASC").Find(&rounds).Error; err != nil {
		return 0, fmt.Errorf("failed to list settled rounds: %w", err)
	}

	archived := 0
	for _, round := range rounds {
		var presses []models.Press
		if err := a.DB.Where("round_id = ?", round.ID).
			Order("pressed_at ASC").Find(&presses).Error; err != nil {
			return archived, fmt.Errorf("failed to load presses for round %d: %w", round.RoundNumber, err)
		}

		export := roundExport{
			RoundNumber: round.RoundNumber,
			Winner:      round.Winner,
			Pot:         round.Pot,
			PressCount:  round.PressCount,
			StartedAt:   round.StartedAt,
			EndedAt:     round.EndedAt,
			Presses:     presses,
		}
		data, err := json.Marshal(export)
		if err != nil {
			return archived, fmt.Errorf("failed to marshal round %d: %w", round.RoundNumber, err)
		}

		winnerSlug := "no-winner"
		if round.Winner != nil {
			winnerSlug = slug.Make(*round.Winner)
		}
		key := fmt.Sprintf("rounds/%d-%s.json", round.RoundNumber, winnerSlug)

		url, err := utils.UploadBytesToR2(ctx, key, data, "application/json")
		if err != nil {
			// Do NOT flag the round on failure — retry next tick.
			return archived, err
		}

		if err := a.DB.Model(&models.Round{}).
			Where("id = ?", round.ID).
			Update("archived", true).Error; err != nil {
			return archived, fmt.Errorf("failed to flag round %d archived: %w", round.RoundNumber, err)
		}

		log.Printf("📦 Archived round %d → %s", round.RoundNumber, url)
		archived++
	}
	return archived, nil
}

// PollSettledRounds runs the archiver on a fixed interval until ctx is done.
func PollSettledRounds(ctx context.Context, archiver *RoundArchiver, pollInterval time.Duration) {
	log.Println("Starting round archive worker (R2-backed)...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Round archive worker stopped.")
			return
		case <-ticker.C:
			count, err := archiver.ArchiveSettledRounds(ctx)
			if err != nil {
				log.Printf("❌ Round archive pass failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("✅ Archived %d settled round(s) to R2", count)
			}
		}
	}
}
