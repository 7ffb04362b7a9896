// Package webhook receives WhatsApp callbacks and feeds text messages to
// the router. The provider retries on non-200 responses, so the handler
// acknowledges everything it could parse and drops what it cannot.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rolesclub/rolesbot/internal/bus"
)

// payload mirrors the cloud webhook envelope. Only text messages are
// routed; delivery receipts and media arrive in the same shape and are
// ignored.
type payload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Options configures the HTTP server.
type Options struct {
	Host        string
	Port        int
	VerifyToken string
}

// Server exposes /webhook and /health.
type Server struct {
	opts    Options
	handler bus.Handler
	limiter *senderRateLimiter
	log     *slog.Logger
}

// New builds the server around a message handler.
func New(opts Options, handler bus.Handler) *Server {
	return &Server{
		opts:    opts,
		handler: handler,
		limiter: newSenderRateLimiter(),
		log:     slog.Default(),
	}
}

// Mux returns the route table, exposed for tests.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /webhook", s.handleVerify)
	mux.HandleFunc("POST /webhook", s.handleInbound)
	return mux
}

// Run serves until the context is canceled, then shuts down draining
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port),
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("webhook.listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleVerify answers the provider's subscription handshake by echoing
// hub.challenge when the token matches.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.opts.VerifyToken {
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	s.log.Warn("webhook.verify_rejected", "remote", r.RemoteAddr)
	http.Error(w, "verification failed", http.StatusForbidden)
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		s.log.Warn("webhook.decode_failed", "error", err)
	} else {
		for _, entry := range p.Entry {
			for _, change := range entry.Changes {
				for _, m := range change.Value.Messages {
					s.route(r.Context(), m)
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) route(ctx context.Context, m inboundMessage) {
	if m.Type != "text" || m.From == "" {
		return
	}
	if !s.limiter.Allow(m.From) {
		s.log.Warn("webhook.rate_limited", "sender", m.From)
		return
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.handler.Handle(ctx, bus.InboundMessage{
		SenderID:  m.From,
		Text:      m.Text.Body,
		MessageID: id,
	})
}
