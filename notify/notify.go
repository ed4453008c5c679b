// Package notify delivers direct messages to members.
//
// Delivery is best effort: a member may have closed DMs, the relay may be
// down. Every failure is reported as ErrUndeliverable and the caller is
// expected to log it and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/warp/clanpoints/ledger"
)

// ErrUndeliverable wraps every delivery failure.
var ErrUndeliverable = errors.New("notification undeliverable")

// Message is the payload posted to the relay.
type Message struct {
	Community ledger.CommunityID `json:"community_id"`
	Member    ledger.MemberID    `json:"member_id"`
	Text      string             `json:"text"`
}

// =============================================================================
// WEBHOOK - POSTs messages to the chat gateway, rate-limited
// =============================================================================

// Webhook posts each message as JSON to URL. The limiter keeps bulk
// distributions (grant-role) under the gateway's DM rate limit.
type Webhook struct {
	URL     string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewWebhook allows perSecond messages per second with a burst of burst.
func NewWebhook(url string, perSecond float64, burst int) *Webhook {
	return &Webhook{
		URL:     url,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

func (w *Webhook) Notify(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, text string) error {
	if w.Limiter != nil {
		if err := w.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUndeliverable, err)
		}
	}

	body, err := json.Marshal(Message{Community: c, Member: m, Text: text})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUndeliverable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUndeliverable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUndeliverable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: relay returned %s", ErrUndeliverable, resp.Status)
	}
	return nil
}

// =============================================================================
// LOG - Writes messages to the process log (no chat gateway configured)
// =============================================================================

type Log struct {
	Logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger.With("component", "notify")}
}

func (l *Log) Notify(_ context.Context, c ledger.CommunityID, m ledger.MemberID, text string) error {
	l.Logger.Info("direct message", "community", c, "member", m, "text", text)
	return nil
}
