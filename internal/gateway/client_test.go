package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rolesclub/rolesbot/internal/bus"
)

func TestSendFormatsGupshupRequest(t *testing.T) {
	var (
		mu     sync.Mutex
		apikey string
		form   map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		apikey = r.Header.Get("apikey")
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		mu.Unlock()
		w.Write([]byte(`{"status":"submitted"}`))
	}))
	defer srv.Close()

	c := New(Options{
		APIKey:   "k-123",
		AppName:  "rolesbot",
		Source:   "5210000000000",
		Endpoint: srv.URL,
	})
	err := c.Send(context.Background(), bus.OutboundMessage{Destination: "5215512345678", Text: "hola *mundo*"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if apikey != "k-123" {
		t.Errorf("apikey header = %q", apikey)
	}
	if form["channel"] != "whatsapp" || form["source"] != "5210000000000" || form["destination"] != "5215512345678" {
		t.Errorf("form = %v", form)
	}
	if form["src.name"] != "rolesbot" {
		t.Errorf("src.name = %q", form["src.name"])
	}
	var payload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(form["message"]), &payload); err != nil {
		t.Fatalf("message field not JSON: %v", err)
	}
	if payload.Type != "text" || payload.Text != "hola *mundo*" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Options{APIKey: "bad", Source: "52100", Endpoint: srv.URL})
	err := c.Send(context.Background(), bus.OutboundMessage{Destination: "521", Text: "x"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send = %v, want ErrTransport", err)
	}
}

func TestBroadcastCountsFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "k", Source: "52100", Endpoint: srv.URL})
	sent, failed := c.Broadcast(context.Background(), []string{"1", "2", "3"}, "aviso")
	if sent != 2 || failed != 1 {
		t.Errorf("sent=%d failed=%d, want 2/1", sent, failed)
	}
}
