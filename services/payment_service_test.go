package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"button-game-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTreasury = "SPKH9AWG0ENZ87J1X0PBD4HETP22G8W22AFNVF8K"

func newPaymentTestApp(t *testing.T, verifierURL string) (*fiber.App, *PaymentService, *GameService, *clockwork.FakeClock) {
	t.Helper()
	game, clock := newTestGame(t)
	payments := NewPaymentService(game.DB, game, NewVerifierClient(verifierURL), testTreasury)

	app := fiber.New()
	app.Get("/api/press-sbtc", payments.Discovery)
	app.Post("/api/press-sbtc", payments.PressPaid)
	app.Get("/.well-known/x402.json", payments.WellKnown)
	return app, payments, game, clock
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp, decoded
}

// gameStateDigest captures everything a failed paid press must leave
// untouched.
type gameStateDigest struct {
	pot        float64
	pressCount int
	version    int
	presses    int64
	players    int64
}

func digest(t *testing.T, game *GameService) gameStateDigest {
	t.Helper()
	round := loadRound(t, game, 1)
	var presses, players int64
	require.NoError(t, game.DB.Model(&models.Press{}).Count(&presses).Error)
	require.NoError(t, game.DB.Model(&models.Player{}).Count(&players).Error)
	return gameStateDigest{
		pot:        round.Pot,
		pressCount: round.PressCount,
		version:    round.Version,
		presses:    presses,
		players:    players,
	}
}

func TestPressPaidWithoutArtifactReturns402(t *testing.T) {
	app, _, game, _ := newPaymentTestApp(t, "http://verifier.invalid")

	before := digest(t, game)
	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"alice"}`, nil)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	// Machine-readable requirements.
	assert.EqualValues(t, PressCostSats, body["maxAmountRequired"])
	assert.Equal(t, testTreasury, body["payTo"])
	assert.Equal(t, SBTCContract, body["tokenContract"])

	nonce, ok := body["nonce"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(nonce)
	assert.NoError(t, err, "nonce must be a valid uuid")

	expiresAt, err := time.Parse(time.RFC3339, body["expiresAt"].(string))
	require.NoError(t, err)
	assert.True(t, expiresAt.After(game.Clock.Now()))

	state, ok := body["gameState"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, state["round"])
	assert.InDelta(t, models.FullTimerSeconds, state["timer"].(float64), 0.001)

	// The nonce row is the only write; game state is untouched.
	assert.Equal(t, before, digest(t, game))
	var nonceCount int64
	require.NoError(t, game.DB.Model(&models.PaymentNonce{}).Count(&nonceCount).Error)
	assert.EqualValues(t, 1, nonceCount)
}

func TestPressPaidVerifierRejectionLeavesStateUnchanged(t *testing.T) {
	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transaction rejected: bad signature", http.StatusBadRequest)
	}))
	defer verifier.Close()

	app, _, game, _ := newPaymentTestApp(t, verifier.URL)
	mustPress(t, game, "alice") // open the round first

	before := digest(t, game)
	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"bob"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"].(string), "Payment failed")

	assert.Equal(t, before, digest(t, game), "verifier failure must not mutate any state")
}

func TestPressPaidVerifierEmptyRejectionStillHasReason(t *testing.T) {
	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer verifier.Close()

	app, _, game, _ := newPaymentTestApp(t, verifier.URL)
	mustPress(t, game, "alice")

	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"bob"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"].(string), "503", "an empty rejection body falls back to the HTTP status")
}

func TestPressPaidVerifierUnreachableLeavesStateUnchanged(t *testing.T) {
	app, _, game, _ := newPaymentTestApp(t, "http://127.0.0.1:1")
	mustPress(t, game, "alice")

	before := digest(t, game)
	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"bob"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, before, digest(t, game))
}

func TestPressPaidSuccessRecordsSettlementID(t *testing.T) {
	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/hex", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, "deadbeef", string(raw))
		_ = json.NewEncoder(w).Encode(map[string]string{"txid": "0xabc123"})
	}))
	defer verifier.Close()

	app, _, game, _ := newPaymentTestApp(t, verifier.URL)

	resp, body := doJSON(t, app, "POST", "/api/press-sbtc",
		`{"player":"carol","walletAddress":"SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0xabc123", body["txId"])
	assert.Equal(t, "sbtc", body["mode"])
	assert.InDelta(t, PressCostSBTC, body["pot"].(float64), 1e-9)

	var press models.Press
	require.NoError(t, game.DB.Where("player_name = ?", "carol").First(&press).Error)
	require.NotNil(t, press.PaymentTxID)
	assert.Equal(t, "0xabc123", *press.PaymentTxID)
	assert.InDelta(t, PressCostSBTC, press.PaymentAmount, 1e-12)

	carol := loadPlayer(t, game, "carol")
	require.NotNil(t, carol.WalletAddress)
	assert.Equal(t, "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", *carol.WalletAddress)
	assert.InDelta(t, PressCostSBTC, carol.TotalSpent, 1e-12)
}

func TestPressPaidAgainstSettledRoundIsRejectedWithoutVerifierCall(t *testing.T) {
	verifierCalled := false
	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifierCalled = true
		_ = json.NewEncoder(w).Encode(map[string]string{"txid": "0xabc123"})
	}))
	defer verifier.Close()

	app, _, game, clock := newPaymentTestApp(t, verifier.URL)
	mustPress(t, game, "alice")
	clock.Advance(61 * time.Second)
	require.NoError(t, game.SettleIfExpired())

	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"bob"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.False(t, verifierCalled, "no verifier call when the round is already over")
}

func TestPressPaidCapturedPaymentOnExpiryIsSurfaced(t *testing.T) {
	// The round expires while the verifier confirms the payment: the payment
	// is captured but the press is too late. The response must say both.
	app, payments, game, clock := newPaymentTestApp(t, "placeholder")

	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(61 * time.Second)
		_ = json.NewEncoder(w).Encode(map[string]string{"txid": "0xlate"})
	}))
	defer verifier.Close()
	payments.Verifier = NewVerifierClient(verifier.URL)

	mustPress(t, game, "alice")

	resp, body := doJSON(t, app, "POST", "/api/press-sbtc", `{"player":"bob"}`,
		map[string]string{"X-PAYMENT": "deadbeef"})

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["payment_captured"])
	assert.Equal(t, "0xlate", body["txId"])

	round := loadRound(t, game, 1)
	assert.Equal(t, models.RoundStatusSettled, round.Status)
	require.NotNil(t, round.Winner)
	assert.Equal(t, "alice", *round.Winner, "the expired round still settles to the last presser")
}

func TestDiscoveryEndpoints(t *testing.T) {
	app, _, _, _ := newPaymentTestApp(t, "http://verifier.invalid")

	resp, body := doJSON(t, app, "GET", "/api/press-sbtc", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["x402Version"])
	accepts, ok := body["accepts"].([]interface{})
	require.True(t, ok)
	require.Len(t, accepts, 1)
	first := accepts[0].(map[string]interface{})
	assert.Equal(t, testTreasury, first["payTo"])
	assert.Equal(t, "sBTC", first["asset"])

	resp, body = doJSON(t, app, "GET", "/.well-known/x402.json", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["x402Version"])
}

func TestPurgeExpiredNonces(t *testing.T) {
	app, payments, _, clock := newPaymentTestApp(t, "http://verifier.invalid")

	_, _ = doJSON(t, app, "POST", "/api/press-sbtc", "", nil)
	_, _ = doJSON(t, app, "POST", "/api/press-sbtc", "", nil)

	purged, err := payments.PurgeExpiredNonces()
	require.NoError(t, err)
	assert.Zero(t, purged, "fresh nonces survive the purge")

	clock.Advance(nonceTTL + time.Minute)
	purged, err = payments.PurgeExpiredNonces()
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)
}
