// Package leaderboard submits session results to the global leaderboard
// service. Submissions are fire-and-forget: a failure is logged and the game
// carries on.
package leaderboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
)

// Client posts score submissions over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a leaderboard client.
// Returns nil if url is empty (submissions disabled).
func NewClient(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled returns true if the client has a submission URL.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// Submission is one session result.
type Submission struct {
	PlayerID    string    `json:"player_id"`
	Platform    string    `json:"platform"`
	NetWorth    float64   `json:"net_worth"`
	Level       int       `json:"level"`
	Routes      int       `json:"routes"`
	Reputation  float64   `json:"reputation"`
	Singularity float64   `json:"singularity"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submit posts a score. Errors are returned so callers can log them, but
// nothing retries; the leaderboard is best-effort.
func (c *Client) Submit(sub Submission) error {
	if !c.Enabled() {
		return fmt.Errorf("leaderboard client not configured")
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("leaderboard returned %d", resp.StatusCode)
	}
	return nil
}

// SubmitEmpire builds a submission from an empire view and posts it in the
// background. Failures only warn.
func (c *Client) SubmitEmpire(view economy.EmpireView, platform string, netWorth, singularity float64) {
	if !c.Enabled() {
		return
	}
	sub := Submission{
		PlayerID:    view.PlayerID,
		Platform:    platform,
		NetWorth:    netWorth,
		Level:       view.Level,
		Routes:      len(view.OwnedRoutes),
		Reputation:  view.Reputation,
		Singularity: singularity,
	}
	go func() {
		if err := c.Submit(sub); err != nil {
			slog.Warn("leaderboard submission failed", "player", sub.PlayerID, "error", err)
		}
	}()
}
