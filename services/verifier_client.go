// button-game-system/services/verifier_client.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// VerifierClient forwards an already-signed payment artifact to the
// external payment verifier (a Stacks transaction broadcast API). The
// service never inspects or constructs transactions itself — it trusts the
// verifier's yes/no plus the returned transaction id.
type VerifierClient struct {
	BaseURL string
	Client  *http.Client
}

type broadcastResponse struct {
	TxID string `json:"txid"`
}

func NewVerifierClient(baseURL string) *VerifierClient {
	return &VerifierClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BroadcastTransaction submits the raw signed transaction hex and returns
// the verifier's settlement id. Any non-2xx response or transport error is
// a verification failure; callers must not mutate state in that case.
func (c *VerifierClient) BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error) {
	url := fmt.Sprintf("%s/v2/transactions", c.BaseURL)

	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(rawTxHex))
	if err != nil {
		return "", fmt.Errorf("failed to create verifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/hex")
	req.Header.Set("User-Agent", "button-game-system/1.0")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment verifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := strings.TrimSpace(string(body))
		if readErr != nil || reason == "" {
			reason = resp.Status
		}
		log.Printf("Payment verifier returned %d: %s", resp.StatusCode, reason)
		return "", fmt.Errorf("payment rejected by verifier: %s", reason)
	}
	if readErr != nil {
		return "", fmt.Errorf("failed to read verifier response: %w", readErr)
	}

	var out broadcastResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode verifier response: %w", err)
	}
	if out.TxID == "" {
		return "", fmt.Errorf("verifier response missing txid")
	}
	return out.TxID, nil
}
