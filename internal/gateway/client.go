// Package gateway sends WhatsApp messages through the Gupshup HTTP API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rolesclub/rolesbot/internal/bus"
)

// DefaultEndpoint is Gupshup's single-message send URL.
const DefaultEndpoint = "https://api.gupshup.io/wa/api/v1/msg"

// ErrTransport wraps every failure to hand a message to Gupshup, so
// callers can distinguish delivery trouble from their own errors.
var ErrTransport = errors.New("gupshup transport error")

// Options configures the client.
type Options struct {
	APIKey  string
	AppName string
	// Source is the bot's WhatsApp number in digit form.
	Source string
	// Endpoint overrides DefaultEndpoint, used by tests.
	Endpoint string
	// RateLimitRPM caps outbound sends per minute. Zero disables the cap.
	RateLimitRPM int
	Timeout      time.Duration
}

// Client implements bus.Sender against the Gupshup API.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New builds a client. The rate limiter smooths broadcasts (round start
// messages every member at once) below Gupshup's per-app ceiling.
func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimitRPM)/60.0), opts.RateLimitRPM)
	}
	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		log:     slog.Default(),
	}
}

type textPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send delivers one text message, blocking on the rate limiter first.
func (c *Client) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	payload, err := json.Marshal(textPayload{Type: "text", Text: msg.Text})
	if err != nil {
		return err
	}
	form := url.Values{
		"channel":     {"whatsapp"},
		"source":      {c.opts.Source},
		"destination": {msg.Destination},
		"message":     {string(payload)},
		"src.name":    {c.opts.AppName},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apikey", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	c.log.Debug("gateway.sent", "destination", msg.Destination, "bytes", len(msg.Text))
	return nil
}

// Broadcast sends the same text to every destination, continuing past
// failures. It returns the delivered and failed counts.
func (c *Client) Broadcast(ctx context.Context, destinations []string, text string) (sent, failed int) {
	for _, dest := range destinations {
		err := c.Send(ctx, bus.OutboundMessage{Destination: dest, Text: text})
		if err != nil {
			failed++
			c.log.Warn("gateway.broadcast_failed", "destination", dest, "error", err)
			continue
		}
		sent++
	}
	return sent, failed
}
