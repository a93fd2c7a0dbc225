package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"button-game-system/models"
	"button-game-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FreePressCost is the simulated sBTC cost added to the pot for every free
// press, payment reality notwithstanding.
const FreePressCost = 0.001

// MaxFreeNameLength bounds presser identifiers on the free endpoint.
const MaxFreeNameLength = 20

// errPressConflict signals that a guarded round update lost a race with a
// concurrent press or settlement. The transaction is rolled back and the
// press re-evaluated against fresh state.
var errPressConflict = errors.New("round advanced concurrently")

type GameService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewGameService(db *gorm.DB, clock clockwork.Clock) *GameService {
	return &GameService{DB: db, Clock: clock}
}

// PressOutcome is the result of one press attempt against the round state
// machine. Game-state rejections (round over, too late, contention) are
// outcomes rather than errors so that a settlement performed on the
// rejection path still commits.
type PressOutcome struct {
	Accepted    bool
	Reason      string
	RoundOver   bool
	TimerAt     float64
	Color       string
	Flair       string
	Pot         float64
	RoundNumber int
}

// StateSnapshot is a consistent read of the current round, taken from a
// single transaction. JSON field names follow the public API.
type StateSnapshot struct {
	Timer       float64 `json:"timer"`
	LastPresser *string `json:"lastPresser"`
	Pot         float64 `json:"pot"`
	PressCount  int     `json:"pressCount"`
	PlayerCount int64   `json:"playerCount"`
	GameOver    bool    `json:"gameOver"`
	Winner      *string `json:"winner"`
	Round       int     `json:"round"`
	TotalGames  int64   `json:"totalGames"`
	Waiting     bool    `json:"waiting"`
}

// LeaderboardRow is a read-only projection of Player. NetProfit and ROI are
// derived at read time, never stored.
type LeaderboardRow struct {
	Name         string  `json:"name"`
	TotalPresses int     `json:"total_presses"`
	TotalSpent   float64 `json:"total_spent"`
	TotalWon     float64 `json:"total_won"`
	NetProfit    float64 `json:"net_profit"`
	ROI          float64 `json:"roi"`
}

// ===== Round factory =====

// EnsureCurrentRound seeds round 1 on first boot. Idempotent.
func (s *GameService) EnsureCurrentRound() error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Round{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		_, err := s.createRound(tx, 1)
		return err
	})
}

// createRound inserts the next round in pending state: zero pot, zero press
// count, no presser. Callers must have settled the previous round first, so
// at most one non-settled round exists.
func (s *GameService) createRound(tx *gorm.DB, number int) (*models.Round, error) {
	round := &models.Round{
		ID:           uuid.NewString(),
		RoundNumber:  number,
		Status:       models.RoundStatusPending,
		TimerSeconds: models.FullTimerSeconds,
	}
	if err := tx.Create(round).Error; err != nil {
		return nil, fmt.Errorf("failed to create round %d: %w", number, err)
	}
	return round, nil
}

// currentRound loads the latest round. The single-row read keeps every
// snapshot consistent — timer and pot always come from the same record.
func (s *GameService) currentRound(tx *gorm.DB) (*models.Round, error) {
	var round models.Round
	if err := tx.Order("round_number DESC").First(&round).Error; err != nil {
		return nil, err
	}
	return &round, nil
}

// ===== Settlement =====

// settleTx closes a round whose countdown reached zero: marks it settled,
// freezes pot and press count as closed facts, and credits the winner's
// total_won — all inside the caller's transaction. The UPDATE is guarded by
// the version the caller read the expiry condition from, so the transition
// commits only if the round is still exactly the one that was observed
// expired: a concurrent press (which bumps the version and resets the
// countdown) or a concurrent settlement makes the UPDATE match zero rows and
// the call reports false without touching anything.
//
// force additionally closes a pending (never-pressed) round; used by reset.
func (s *GameService) settleTx(tx *gorm.DB, round *models.Round, now time.Time, force bool) (bool, error) {
	query := tx.Model(&models.Round{}).
		Where("id = ? AND version = ? AND status = ?",
			round.ID, round.Version, models.RoundStatusOpen)
	if force {
		query = tx.Model(&models.Round{}).
			Where("id = ? AND version = ? AND status <> ?",
				round.ID, round.Version, models.RoundStatusSettled)
	}

	updates := map[string]interface{}{
		"status":   models.RoundStatusSettled,
		"ended_at": now,
		"version":  gorm.Expr("version + 1"),
	}
	if round.Status == models.RoundStatusOpen && round.LastPresser != nil {
		updates["winner"] = *round.LastPresser
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent press or settlement — normal path,
		// not an error. The caller decides whether to re-evaluate.
		return false, nil
	}

	if round.Status == models.RoundStatusOpen && round.LastPresser != nil && round.Pot > 0 {
		if err := tx.Model(&models.Player{}).
			Where("name = ?", *round.LastPresser).
			Update("total_won", gorm.Expr("total_won + ?", round.Pot)).Error; err != nil {
			return false, fmt.Errorf("failed to credit winner %s: %w", *round.LastPresser, err)
		}
	}
	return true, nil
}

// SettleIfExpired settles the current round if its countdown has reached
// zero. Safe to call from any accessor at any time; used by the scheduler
// sweep and by state reads.
func (s *GameService) SettleIfExpired() error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		round, err := s.currentRound(tx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		now := s.Clock.Now().UTC()
		if round.Status == models.RoundStatusOpen && round.RemainingAt(now) <= 0 {
			// A lost race means a concurrent press revived the round or a
			// concurrent observer already settled it; the next sweep or read
			// re-evaluates either way.
			_, err := s.settleTx(tx, round, now, false)
			return err
		}
		return nil
	})
}

// ResetRound forces settlement of the current round (skipped if already
// settled), then has the round factory produce the next one. Returns the new
// round number. A settle race lost to a concurrent press is retried once
// against fresh state so the next round is never created beside a live one.
func (s *GameService) ResetRound() (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var newNumber int
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			round, err := s.currentRound(tx)
			if err != nil {
				return err
			}
			now := s.Clock.Now().UTC()
			if round.Status != models.RoundStatusSettled {
				settled, err := s.settleTx(tx, round, now, true)
				if err != nil {
					return err
				}
				if !settled {
					return errPressConflict
				}
			}
			next, err := s.createRound(tx, round.RoundNumber+1)
			if err != nil {
				return err
			}
			newNumber = next.RoundNumber
			return nil
		})
		if errors.Is(err, errPressConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return newNumber, nil
	}
	return 0, errPressConflict
}

// ===== Press arbitration =====

// attemptPress runs the full accept/reject decision and, on acceptance, the
// press ledger append, player aggregate update, and round reset as one
// atomic transaction. The round row is committed through a version-guarded
// UPDATE (optimistic CAS); losing the race rolls everything back and the
// attempt is retried once against fresh state.
func (s *GameService) attemptPress(name string, wallet *string, amount float64, txid *string) (*PressOutcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		out := &PressOutcome{}
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			round, err := s.currentRound(tx)
			if err != nil {
				return err
			}
			now := s.Clock.Now().UTC()
			out.RoundNumber = round.RoundNumber

			if round.Status == models.RoundStatusSettled {
				out.Reason = "Game over! Start a new round."
				out.RoundOver = true
				return nil
			}

			// First press of a round is always accepted and opens the countdown.
			timerAt := round.TimerSeconds
			if round.Status == models.RoundStatusOpen {
				timerAt = round.RemainingAt(now)
				if timerAt <= 0 {
					// Expiry observed: settle here so the transition commits even
					// though this press is rejected. Losing the settle race means
					// the round changed under us; retry against fresh state.
					settled, err := s.settleTx(tx, round, now, false)
					if err != nil {
						return err
					}
					if !settled {
						return errPressConflict
					}
					out.Reason = "Too late! Game over."
					out.RoundOver = true
					return nil
				}
			}

			if err := s.upsertPlayer(tx, name, wallet, now); err != nil {
				return err
			}

			press := models.Press{
				ID:            uuid.NewString(),
				RoundID:       round.ID,
				RoundNumber:   round.RoundNumber,
				PlayerName:    name,
				PressedAt:     now,
				TimerAt:       timerAt,
				PaymentTxID:   txid,
				PaymentAmount: amount,
				Color:         models.PresserColor(timerAt),
				Flair:         models.FlairName(timerAt),
			}
			if err := tx.Create(&press).Error; err != nil {
				return fmt.Errorf("failed to record press: %w", err)
			}

			if err := tx.Model(&models.Player{}).Where("name = ?", name).
				Updates(map[string]interface{}{
					"total_presses": gorm.Expr("total_presses + 1"),
					"total_spent":   gorm.Expr("total_spent + ?", amount),
					"last_seen":     now,
				}).Error; err != nil {
				return fmt.Errorf("failed to update player stats: %w", err)
			}

			updates := map[string]interface{}{
				"status":        models.RoundStatusOpen,
				"last_press_at": now,
				"last_presser":  name,
				"pot":           gorm.Expr("pot + ?", amount),
				"press_count":   gorm.Expr("press_count + 1"),
				"version":       gorm.Expr("version + 1"),
			}
			if round.StartedAt == nil {
				updates["started_at"] = now
			}

			res := tx.Model(&models.Round{}).
				Where("id = ? AND version = ? AND status <> ?",
					round.ID, round.Version, models.RoundStatusSettled).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errPressConflict
			}

			out.Accepted = true
			out.TimerAt = timerAt
			out.Color = press.Color
			out.Flair = press.Flair
			out.Pot = round.Pot + amount
			return nil
		})
		if errors.Is(err, errPressConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return &PressOutcome{Reason: "Button contention, please try again."}, nil
}

// upsertPlayer creates the player row on first press and bumps last_seen
// afterwards. The wallet address is first-write-wins: COALESCE keeps an
// existing address over any later value, including null.
func (s *GameService) upsertPlayer(tx *gorm.DB, name string, wallet *string, now time.Time) error {
	player := models.Player{
		Name:          name,
		WalletAddress: wallet,
		FirstSeen:     now,
		LastSeen:      now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen":      now,
			"wallet_address": gorm.Expr("COALESCE(players.wallet_address, ?)", wallet),
		}),
	}).Create(&player).Error
}

// ===== Snapshots =====

// Snapshot reads the current round and settles it first if the countdown
// has expired — settlement-on-read is part of the public contract, so a
// plain state query still closes an abandoned round promptly.
func (s *GameService) Snapshot() (*StateSnapshot, error) {
	return s.snapshot(true)
}

// PeekSnapshot reads the current round without side effects. Used where a
// snapshot is embedded in another response (402 bodies, agent summary).
func (s *GameService) PeekSnapshot() (*StateSnapshot, error) {
	return s.snapshot(false)
}

func (s *GameService) snapshot(settleExpired bool) (*StateSnapshot, error) {
	snap := &StateSnapshot{}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		round, err := s.currentRound(tx)
		if err != nil {
			return err
		}
		now := s.Clock.Now().UTC()

		if settleExpired && round.Status == models.RoundStatusOpen && round.RemainingAt(now) <= 0 {
			// Won or lost, the re-read below reflects whatever committed.
			if _, err := s.settleTx(tx, round, now, false); err != nil {
				return err
			}
			if round, err = s.currentRound(tx); err != nil {
				return err
			}
		}

		snap.Timer = round.RemainingAt(now)
		snap.LastPresser = round.LastPresser
		snap.Pot = round.Pot
		snap.PressCount = round.PressCount
		snap.GameOver = round.Status == models.RoundStatusSettled
		snap.Winner = round.Winner
		snap.Round = round.RoundNumber
		snap.Waiting = round.Status == models.RoundStatusPending

		if err := tx.Model(&models.Player{}).Count(&snap.PlayerCount).Error; err != nil {
			return err
		}
		return tx.Model(&models.Round{}).Count(&snap.TotalGames).Error
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// leaderboardRows builds the read-side leaderboard projection.
func (s *GameService) leaderboardRows(limit int) ([]LeaderboardRow, error) {
	var players []models.Player
	if err := s.DB.Order("total_presses DESC, total_won DESC").
		Limit(limit).Find(&players).Error; err != nil {
		return nil, err
	}

	rows := make([]LeaderboardRow, 0, len(players))
	for _, p := range players {
		roi := 0.0
		if p.TotalSpent > 0 {
			roi = p.TotalWon / p.TotalSpent
		}
		rows = append(rows, LeaderboardRow{
			Name:         p.Name,
			TotalPresses: p.TotalPresses,
			TotalSpent:   p.TotalSpent,
			TotalWon:     p.TotalWon,
			NetProfit:    p.TotalWon - p.TotalSpent,
			ROI:          roi,
		})
	}
	return rows, nil
}

func (s *GameService) recentPresses(limit int) ([]models.Press, error) {
	var presses []models.Press
	if err := s.DB.Order("pressed_at DESC").Limit(limit).Find(&presses).Error; err != nil {
		return nil, err
	}
	return presses, nil
}

// ===== HTTP handlers =====

// GetState returns the live round snapshot. Side effect (documented): an
// expired round is settled before the response is built.
func (s *GameService) GetState(c *fiber.Ctx) error {
	snap, err := s.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read game state"})
	}
	return c.JSON(snap)
}

// PressFree handles the free play mode: a fixed nominal cost is added to
// the pot regardless of payment reality.
func (s *GameService) PressFree(c *fiber.Ctx) error {
	var input struct {
		Player string `json:"player"`
	}
	// A malformed body just falls through to the anonymized placeholder.
	_ = c.BodyParser(&input)
	name := utils.SanitizePlayerName(input.Player, MaxFreeNameLength)

	out, err := s.attemptPress(name, nil, FreePressCost, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "press failed"})
	}
	if !out.Accepted {
		return c.JSON(fiber.Map{"success": false, "error": out.Reason})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"timer":   models.FullTimerSeconds,
		"color":   out.Color,
		"flair":   out.Flair,
		"mode":    "free",
		"pot":     out.Pot,
	})
}

// Leaderboard returns players ordered by presses then winnings, with
// derived profit/ROI.
func (s *GameService) Leaderboard(c *fiber.Ctx) error {
	rows, err := s.leaderboardRows(50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}
	return c.JSON(fiber.Map{"leaderboard": rows})
}

// History returns recent presses across all rounds, newest first.
func (s *GameService) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	presses, err := s.recentPresses(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch history"})
	}
	return c.JSON(fiber.Map{"history": presses})
}

// Reset forces settlement of the current round, then starts the next one.
func (s *GameService) Reset(c *fiber.Ctx) error {
	newRound, err := s.ResetRound()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "reset failed"})
	}
	log.Printf("🔄 Round reset — now on round %d", newRound)
	return c.JSON(fiber.Map{"success": true, "round": newRound})
}

// Health reports service liveness and DB reachability.
func (s *GameService) Health(c *fiber.Ctx) error {
	snap, err := s.PeekSnapshot()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "dbConnected": false})
	}
	return c.JSON(fiber.Map{
		"status":      "button ready",
		"round":       snap.Round,
		"dbConnected": true,
		"gameOver":    snap.GameOver,
	})
}
