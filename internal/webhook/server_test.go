package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rolesclub/rolesbot/internal/bus"
)

type captureHandler struct {
	mu   sync.Mutex
	msgs []bus.InboundMessage
}

func (h *captureHandler) Handle(_ context.Context, msg bus.InboundMessage) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
}

func (h *captureHandler) all() []bus.InboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bus.InboundMessage(nil), h.msgs...)
}

func newTestServer() (*Server, *captureHandler) {
	h := &captureHandler{}
	s := New(Options{VerifyToken: "secreto"}, h)
	return s, h
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestVerifyHandshake(t *testing.T) {
	s, _ := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secreto&hub.challenge=12345")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	if resp.StatusCode != http.StatusOK || string(buf[:n]) != "12345" {
		t.Errorf("status=%d body=%q", resp.StatusCode, buf[:n])
	}

	resp2, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=malo")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Errorf("bad token status = %d, want 403", resp2.StatusCode)
	}
}

func TestInboundTextRouted(t *testing.T) {
	s, h := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	body := `{
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "5215512345678", "id": "wamid.1", "type": "text", "text": {"body": "hola"}},
			{"from": "5215512345678", "id": "wamid.2", "type": "image"}
		]}}]}]
	}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	msgs := h.all()
	if len(msgs) != 1 {
		t.Fatalf("routed %d messages, want 1 (text only)", len(msgs))
	}
	if msgs[0].SenderID != "5215512345678" || msgs[0].Text != "hola" || msgs[0].MessageID != "wamid.1" {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestMalformedBodyStillAcked(t *testing.T) {
	s, h := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, provider must not retry", resp.StatusCode)
	}
	if len(h.all()) != 0 {
		t.Error("malformed body produced messages")
	}
}

func TestSenderRateLimit(t *testing.T) {
	s, h := newTestServer()

	for i := 0; i < rateLimitMaxHits+5; i++ {
		s.route(context.Background(), inboundMessage{From: "111000111", Type: "text"})
	}
	if got := len(h.all()); got != rateLimitMaxHits {
		t.Errorf("routed %d messages, want %d", got, rateLimitMaxHits)
	}

	// Other senders are unaffected.
	s.route(context.Background(), inboundMessage{From: "222000222", Type: "text"})
	if got := len(h.all()); got != rateLimitMaxHits+1 {
		t.Errorf("second sender blocked, total %d", got)
	}
}
