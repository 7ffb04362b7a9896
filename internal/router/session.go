package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/rolesclub/rolesbot/internal/sessions"
)

// Mode is the menu a sender is currently navigating.
type Mode string

const (
	// ModeRoot is the entry menu.
	ModeRoot Mode = "root"
	// ModeMember is the member menu (own role, round summary).
	ModeMember Mode = "member"
	// ModeAdmin is the administration menu.
	ModeAdmin Mode = "admin"
	// ModeAdminPick asks a multi-club admin which club to operate on.
	ModeAdminPick Mode = "admin_pick"
)

// Awaiting marks a pending free-text prompt inside the admin menu.
type Awaiting string

const (
	AwaitNone         Awaiting = ""
	AwaitAddMember    Awaiting = "add_member"
	AwaitRemoveMember Awaiting = "remove_member"
)

// Session is one sender's conversation state. ClubID is the bound club;
// empty until inference or an explicit pick resolves one.
type Session struct {
	ClubID   string   `json:"club_id,omitempty"`
	Mode     Mode     `json:"mode"`
	Awaiting Awaiting `json:"awaiting,omitempty"`
	// PickOrder freezes the club list shown by the pick menu so the
	// numeric reply maps to what the sender actually saw.
	PickOrder []string `json:"pick_order,omitempty"`
}

// SessionManager caches sessions in front of a sessions.Store with
// write-through persistence. The manager mutex guards the maps; each
// sender additionally has a serialization lock that dispatch holds for
// the whole message, so two webhook deliveries from one number never
// interleave on the same session.
type SessionManager struct {
	mu    sync.Mutex
	cache map[string]*Session
	locks map[string]*sync.Mutex
	store sessions.Store
	log   *slog.Logger
}

// NewSessionManager wraps the given backend.
func NewSessionManager(store sessions.Store) *SessionManager {
	return &SessionManager{
		cache: make(map[string]*Session),
		locks: make(map[string]*sync.Mutex),
		store: store,
		log:   slog.Default(),
	}
}

// Acquire takes the sender's serialization lock, creating it on first
// touch. The returned func releases it.
func (m *SessionManager) Acquire(waid string) (release func()) {
	m.mu.Lock()
	l, ok := m.locks[waid]
	if !ok {
		l = &sync.Mutex{}
		m.locks[waid] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Get returns the sender's session, loading from the backend on first
// touch. A missing or undecodable record starts a fresh root session.
func (m *SessionManager) Get(waid string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.cache[waid]; ok {
		return s
	}
	s := &Session{Mode: ModeRoot}
	payload, err := m.store.Load(waid)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(payload, s); jsonErr != nil {
			m.log.Warn("session.decode_failed", "sender", waid, "error", jsonErr)
			s = &Session{Mode: ModeRoot}
		}
	case !errors.Is(err, sessions.ErrNotFound):
		m.log.Warn("session.load_failed", "sender", waid, "error", err)
	}
	m.cache[waid] = s
	return s
}

// Put persists the session. Backend failures degrade to memory-only.
func (m *SessionManager) Put(waid string, s *Session) {
	m.mu.Lock()
	m.cache[waid] = s
	payload, err := json.Marshal(s)
	m.mu.Unlock()
	if err == nil {
		err = m.store.Save(waid, payload)
	}
	if err != nil {
		m.log.Warn("session.save_failed", "sender", waid, "error", err)
	}
}

// Reset drops the sender back to the root menu keeping the club binding.
func (m *SessionManager) Reset(waid string, s *Session) {
	s.Mode = ModeRoot
	s.Awaiting = AwaitNone
	s.PickOrder = nil
	m.Put(waid, s)
}
