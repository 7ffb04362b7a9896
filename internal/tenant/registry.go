// Package tenant loads the club registry manifest and owns one context
// per club. The registry is built at startup and frozen: adding clubs at
// runtime is out of scope, so no lock guards the club map itself.
package tenant

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/state"
	"github.com/rolesclub/rolesbot/internal/store"
)

// RegistryFileName is the manifest file inside the clubs directory.
const RegistryFileName = "registry.json"

// Manifest is the registry.json wire format.
type Manifest struct {
	Clubs map[string]ClubEntry `json:"clubs"`
}

// ClubEntry configures one club in the manifest. Admins need not be
// members of the club they administer.
type ClubEntry struct {
	Admins []string `json:"admins"`
}

// Context is one club's runtime state: catalog and round mirrors, the
// backing store, and the tenant lock that serializes every command.
//
// Locking discipline: acquire the lock, mutate, persist, release, then
// send outbound messages. Sends never happen under the lock so network
// latency cannot serialize further commands on the tenant.
type Context struct {
	ClubID string
	Store  *store.ClubStore

	mu      sync.Mutex
	admins  map[string]bool
	catalog *catalog.Club
	round   *state.Round
	corrupt error
}

// Lock acquires the tenant lock.
func (t *Context) Lock() { t.mu.Lock() }

// Unlock releases the tenant lock.
func (t *Context) Unlock() { t.mu.Unlock() }

// Err returns the tenant's fatal load error, if any. A corrupt tenant
// refuses every command until an operator repairs its files.
func (t *Context) Err() error { return t.corrupt }

// Catalog returns the in-memory catalog mirror. Callers must hold the lock.
func (t *Context) Catalog() *catalog.Club { return t.catalog }

// Round returns the in-memory round mirror. Callers must hold the lock.
func (t *Context) Round() *state.Round { return t.round }

// IsAdmin reports whether the sender may run admin commands on this club.
func (t *Context) IsAdmin(senderID string) bool { return t.admins[senderID] }

// Admins returns the admin ids sorted for deterministic broadcasts.
func (t *Context) Admins() []string {
	out := make([]string, 0, len(t.admins))
	for id := range t.admins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SaveState persists the round mirror. Callers must hold the lock.
func (t *Context) SaveState() error { return t.Store.SaveState(t.round) }

// SaveCatalog persists the catalog mirror. Callers must hold the lock.
func (t *Context) SaveCatalog() error { return t.Store.SaveCatalog(t.catalog) }

// Registry maps club ids to tenant contexts and resolves senders.
type Registry struct {
	dir      string
	contexts map[string]*Context
	order    []string
}

// Load reads the manifest and builds one context per club. A club whose
// files fail to decode is kept in the registry with a sticky corrupt
// error; other tenants continue unaffected.
func Load(clubsDir string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Join(clubsDir, RegistryFileName))
	if err != nil {
		return nil, fmt.Errorf("read registry manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode registry manifest: %w", err)
	}

	reg := &Registry{dir: clubsDir, contexts: make(map[string]*Context, len(manifest.Clubs))}
	for clubID, entry := range manifest.Clubs {
		ctx := &Context{
			ClubID: clubID,
			Store:  store.New(filepath.Join(clubsDir, clubID)),
			admins: make(map[string]bool, len(entry.Admins)),
		}
		for _, a := range entry.Admins {
			ctx.admins[a] = true
		}

		ctx.catalog, err = ctx.Store.LoadCatalog()
		if err == nil {
			ctx.round, err = ctx.Store.LoadState()
		}
		if err != nil {
			slog.Error("tenant.load_failed", "club", clubID, "error", err)
			ctx.corrupt = err
			ctx.catalog = &catalog.Club{}
			ctx.round = state.New()
		} else {
			ensureCycleEntries(ctx.catalog, ctx.round)
		}

		reg.contexts[clubID] = ctx
		reg.order = append(reg.order, clubID)
	}
	sort.Strings(reg.order)

	if len(reg.contexts) == 0 {
		return nil, fmt.Errorf("registry manifest lists no clubs")
	}
	return reg, nil
}

// ensureCycleEntries backfills members_cycle for members seeded after the
// state file was created.
func ensureCycleEntries(c *catalog.Club, r *state.Round) {
	for _, m := range c.Members {
		if _, ok := r.MembersCycle[m.ID]; !ok {
			r.MembersCycle[m.ID] = []string{}
		}
	}
}

// Contexts enumerates tenants in stable club-id order.
func (r *Registry) Contexts() []*Context {
	out := make([]*Context, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.contexts[id])
	}
	return out
}

// Get returns the context for a club id.
func (r *Registry) Get(clubID string) (*Context, bool) {
	t, ok := r.contexts[clubID]
	return t, ok
}

// AdminClubs lists the clubs the sender administers, in stable order.
func (r *Registry) AdminClubs(senderID string) []string {
	var out []string
	for _, id := range r.order {
		if r.contexts[id].IsAdmin(senderID) {
			out = append(out, id)
		}
	}
	return out
}

// MemberClub returns the club the sender belongs to, when exactly one.
func (r *Registry) MemberClub(senderID string) (string, bool) {
	var found string
	count := 0
	for _, id := range r.order {
		t := r.contexts[id]
		t.Lock()
		_, err := t.catalog.FindByID(senderID)
		t.Unlock()
		if err == nil {
			found = id
			count++
		}
	}
	if count == 1 {
		return found, true
	}
	return "", false
}

// OfferClub returns the club where the sender holds a pending offer or an
// accepted role in the current round, when one exists.
func (r *Registry) OfferClub(senderID string) (string, bool) {
	for _, id := range r.order {
		t := r.contexts[id]
		t.Lock()
		_, _, pending := t.round.PendingRoleFor(senderID)
		_, accepted := t.round.AcceptedRoleFor(senderID)
		t.Unlock()
		if pending || accepted {
			return id, true
		}
	}
	return "", false
}

// PendingOfferClub returns the club where the sender currently holds a
// pending (unanswered) offer.
func (r *Registry) PendingOfferClub(senderID string) (*Context, bool) {
	for _, id := range r.order {
		t := r.contexts[id]
		t.Lock()
		_, _, pending := t.round.PendingRoleFor(senderID)
		t.Unlock()
		if pending {
			return t, true
		}
	}
	return nil, false
}

// Resolution is the outcome of tenant inference for a sender.
type Resolution int

const (
	// Resolved means a single club was identified.
	Resolved Resolution = iota
	// NeedsPick means the sender administers several clubs and must
	// choose one explicitly.
	NeedsPick
	// Unknown means the sender maps to no club.
	Unknown
)

// InferTenant resolves the club a sender's message targets. boundClubID
// is the session-bound club, empty when none. Resolution order: session
// binding, unique membership, unique adminship, live offer, then needs
// pick for multi-club admins or unknown for everyone else.
func (r *Registry) InferTenant(senderID, boundClubID string) (string, Resolution) {
	if boundClubID != "" {
		if _, ok := r.contexts[boundClubID]; ok {
			return boundClubID, Resolved
		}
	}
	if id, ok := r.MemberClub(senderID); ok {
		return id, Resolved
	}
	if admin := r.AdminClubs(senderID); len(admin) == 1 {
		return admin[0], Resolved
	}
	if id, ok := r.OfferClub(senderID); ok {
		return id, Resolved
	}
	if len(r.AdminClubs(senderID)) > 1 {
		return "", NeedsPick
	}
	return "", Unknown
}
