// Package round drives the assignment state machine for a tenant: it
// starts rounds, walks offers through accept/reject/defer, and applies
// admin operations on the catalog.
//
// Every command follows the same discipline: acquire the tenant lock,
// mutate the in-memory mirrors, persist, release, and only then send the
// outbound messages collected during the mutation. Once persistence has
// committed, the transition is authoritative; transport failures are
// logged and reported to admins but never roll anything back.
package round

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/rolesclub/rolesbot/internal/bus"
	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/selection"
	"github.com/rolesclub/rolesbot/internal/state"
	"github.com/rolesclub/rolesbot/internal/tenant"
)

var (
	// ErrUnauthorized is returned when a non-admin runs an admin command.
	ErrUnauthorized = errors.New("sender is not an admin of this club")
	// ErrRoundInProgress is returned by StartRound while offers are open.
	ErrRoundInProgress = errors.New("round already in progress")
	// ErrNoPendingOffer is returned when a member replies without an
	// outstanding offer.
	ErrNoPendingOffer = errors.New("no pending offer for sender")
	// ErrNoCandidate means selection found nobody eligible for a role.
	ErrNoCandidate = errors.New("no candidate available")
	// ErrMemberBusy blocks removal of a member holding an offer or role.
	ErrMemberBusy = errors.New("member has a pending or accepted role")
	// ErrInvalidID rejects a member id that is not an E.164 digit string.
	ErrInvalidID = errors.New("member id must be an E.164 number without +")
)

var waidPattern = regexp.MustCompile(`^[0-9]{6,15}$`)

// Engine executes round and admin commands against tenant contexts.
type Engine struct {
	sender bus.Sender
	log    *slog.Logger
}

// NewEngine returns an engine that delivers through the given sender.
func NewEngine(sender bus.Sender) *Engine {
	return &Engine{sender: sender, log: slog.Default()}
}

// StartRound begins a new round: refuses while offers are still open
// (unless the previous round was canceled), then walks the roles hardest
// first and offers each one to the selected candidate.
func (e *Engine) StartRound(ctx context.Context, t *tenant.Context, adminID string) error {
	if err := e.gate(t, adminID); err != nil {
		return err
	}

	var out []bus.OutboundMessage

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	if st.HasOpenOffers() && !st.Canceled {
		t.Unlock()
		return ErrRoundInProgress
	}

	st.Round++
	st.Pending = map[string]*state.PendingOffer{}
	st.Accepted = map[string]state.AcceptedRole{}
	st.LastSummary = nil
	st.Canceled = false

	var unfilled []string
	for _, role := range cat.RolesByDifficulty() {
		cand, err := selectFor(cat, st, role, nil)
		if errors.Is(err, ErrNoCandidate) {
			unfilled = append(unfilled, role.Name)
			continue
		}
		st.Pending[role.Name] = &state.PendingOffer{Candidate: cand, DeclinedBy: []string{}}
		out = append(out, bus.OutboundMessage{
			Destination: cand,
			Text:        offerText(displayName(cat, cand), role.Name, st.Round),
		})
	}

	for _, admin := range t.Admins() {
		out = append(out, bus.OutboundMessage{
			Destination: admin,
			Text:        roundStartedNotice(st.Round, displayName(cat, adminID)),
		})
		for _, role := range unfilled {
			out = append(out, bus.OutboundMessage{Destination: admin, Text: exhaustedNotice(role)})
		}
	}

	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	round := st.Round
	t.Unlock()

	e.log.Info("round.start", "club", t.ClubID, "round", round, "offers", len(out), "unfilled", len(unfilled))
	e.deliver(ctx, t, out)
	return nil
}

// Accept moves the sender's pending offer to accepted, updates the cycle
// ledgers, and announces the summary when the round fully resolves.
func (e *Engine) Accept(ctx context.Context, t *tenant.Context, senderID string) error {
	if err := t.Err(); err != nil {
		return err
	}

	var out []bus.OutboundMessage

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	role, _, ok := st.PendingRoleFor(senderID)
	if !ok {
		t.Unlock()
		return ErrNoPendingOffer
	}

	delete(st.Pending, role)
	name := displayName(cat, senderID)
	st.Accepted[role] = state.AcceptedRole{WAID: senderID, Name: name}

	cycle := st.MembersCycle[senderID]
	if !contains(cycle, role) {
		cycle = append(cycle, role)
	}
	if len(cycle) >= cat.RoleCount() {
		cycle = []string{}
	}
	st.MembersCycle[senderID] = cycle

	// Mirror into the catalog; guests accepted mid-round may not be
	// catalog members, which is fine.
	if err := cat.RecordCompletion(senderID, role); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		t.Unlock()
		return err
	}

	out = append(out, bus.OutboundMessage{Destination: senderID, Text: acceptedText(name, role, st.Round)})

	if !st.HasOpenOffers() && len(st.Accepted) > 0 && !st.Canceled {
		summary := summaryText(cat, st)
		st.LastSummary = &summary
		for _, dest := range summaryRecipients(t, st) {
			out = append(out, bus.OutboundMessage{Destination: dest, Text: summaryBroadcast(summary)})
		}
	}

	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	if err := t.SaveCatalog(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("round.accept", "club", t.ClubID, "member", senderID, "role", role)
	e.deliver(ctx, t, out)
	return nil
}

// Reject records the decline and re-selects a candidate for the role.
// When nobody is left the role becomes exhausted and admins are told to
// resolve it manually.
func (e *Engine) Reject(ctx context.Context, t *tenant.Context, senderID string) error {
	if err := t.Err(); err != nil {
		return err
	}

	var out []bus.OutboundMessage

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	role, offer, ok := st.PendingRoleFor(senderID)
	if !ok {
		t.Unlock()
		return ErrNoPendingOffer
	}

	offer.DeclinedBy = append(offer.DeclinedBy, senderID)
	out = append(out, bus.OutboundMessage{Destination: senderID, Text: rejectAck(role)})

	roleDef, _ := roleByName(cat, role)
	cand, err := selectFor(cat, st, roleDef, offer.DeclinedBy)
	if errors.Is(err, ErrNoCandidate) {
		delete(st.Pending, role)
		for _, admin := range t.Admins() {
			out = append(out, bus.OutboundMessage{Destination: admin, Text: exhaustedNotice(role)})
		}
	} else {
		offer.Candidate = cand
		out = append(out, bus.OutboundMessage{
			Destination: cand,
			Text:        reofferText(displayName(cat, cand), role, st.Round),
		})
	}

	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("round.reject", "club", t.ClubID, "member", senderID, "role", role, "exhausted", errors.Is(err, ErrNoCandidate))
	e.deliver(ctx, t, out)
	return nil
}

// Defer acknowledges a "reply later" without touching the offer.
func (e *Engine) Defer(ctx context.Context, t *tenant.Context, senderID string) error {
	if err := t.Err(); err != nil {
		return err
	}

	t.Lock()
	role, _, ok := t.Round().PendingRoleFor(senderID)
	t.Unlock()
	if !ok {
		return ErrNoPendingOffer
	}

	e.deliver(ctx, t, []bus.OutboundMessage{{Destination: senderID, Text: deferAck(role)}})
	return nil
}

// Cancel marks the round canceled and drops all pending offers. Accepted
// roles and cycle ledgers survive; a later StartRound begins clean.
func (e *Engine) Cancel(ctx context.Context, t *tenant.Context, adminID string) error {
	if err := e.gate(t, adminID); err != nil {
		return err
	}

	var out []bus.OutboundMessage

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	st.Canceled = true
	st.Pending = map[string]*state.PendingOffer{}

	for _, m := range cat.Members {
		out = append(out, bus.OutboundMessage{Destination: m.ID, Text: canceledMemberNotice()})
	}
	for _, admin := range t.Admins() {
		out = append(out, bus.OutboundMessage{Destination: admin, Text: canceledAdminNotice(st.Round, displayName(cat, adminID))})
	}

	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("round.cancel", "club", t.ClubID, "by", adminID)
	e.deliver(ctx, t, out)
	return nil
}

// Reset clears assignments and cycle ledgers, keeping the round counter
// monotone. Catalog roles_done mirrors the cycle ledger and is cleared
// with it.
func (e *Engine) Reset(ctx context.Context, t *tenant.Context, adminID string) error {
	if err := e.gate(t, adminID); err != nil {
		return err
	}

	var out []bus.OutboundMessage

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	st.Pending = map[string]*state.PendingOffer{}
	st.Accepted = map[string]state.AcceptedRole{}
	st.MembersCycle = map[string][]string{}
	st.LastSummary = nil
	st.Canceled = false
	for _, m := range cat.Members {
		st.MembersCycle[m.ID] = []string{}
		m.RolesDone = []string{}
	}

	for _, admin := range t.Admins() {
		out = append(out, bus.OutboundMessage{Destination: admin, Text: resetNotice(displayName(cat, adminID))})
	}

	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	if err := t.SaveCatalog(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("round.reset", "club", t.ClubID, "by", adminID)
	e.deliver(ctx, t, out)
	return nil
}

// Status renders the admin status view: round number, assignments,
// open offers with decline counts, and unfilled roles.
func (e *Engine) Status(t *tenant.Context, adminID string) (string, error) {
	if err := e.gate(t, adminID); err != nil {
		return "", err
	}
	t.Lock()
	defer t.Unlock()
	return statusText(t.Catalog(), t.Round()), nil
}

// RoundSummary renders the member-visible assignment summary.
func (e *Engine) RoundSummary(t *tenant.Context) (string, error) {
	if err := t.Err(); err != nil {
		return "", err
	}
	t.Lock()
	defer t.Unlock()
	return summaryText(t.Catalog(), t.Round()), nil
}

// WhoAmI renders the sender's own assignment state.
func (e *Engine) WhoAmI(t *tenant.Context, senderID string) (string, error) {
	if err := t.Err(); err != nil {
		return "", err
	}
	t.Lock()
	defer t.Unlock()
	st := t.Round()
	if role, _, ok := st.PendingRoleFor(senderID); ok {
		return whoAmIPending(role, st.Round), nil
	}
	if role, ok := st.AcceptedRoleFor(senderID); ok {
		return whoAmIAccepted(role, st.Round), nil
	}
	return whoAmINothing(), nil
}

// gate rejects commands on corrupt tenants and admin commands from
// non-admins.
func (e *Engine) gate(t *tenant.Context, adminID string) error {
	if err := t.Err(); err != nil {
		return err
	}
	if !t.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	return nil
}

// selectFor wraps the selection engine with the round's exclusion rules:
// everyone already pending or accepted, plus everyone who declined the
// role. Callers must hold the tenant lock.
func selectFor(cat *catalog.Club, st *state.Round, role catalog.Role, declined []string) (string, error) {
	excluded := st.BusyIDs()
	for _, id := range declined {
		excluded[id] = true
	}
	cand := selection.ChooseCandidate(cat, role, st.MembersCycle, excluded)
	if cand == "" {
		return "", fmt.Errorf("%w: role %q", ErrNoCandidate, role.Name)
	}
	return cand, nil
}

// deliver sends queued messages after the lock is released. Failures are
// logged and reported to admins best-effort; state is already committed.
func (e *Engine) deliver(ctx context.Context, t *tenant.Context, msgs []bus.OutboundMessage) {
	failed := 0
	for _, msg := range msgs {
		if err := e.sender.Send(ctx, msg); err != nil {
			failed++
			e.log.Warn("round.send_failed", "club", t.ClubID, "destination", msg.Destination, "error", err)
		}
	}
	if failed == 0 {
		return
	}
	for _, admin := range t.Admins() {
		notice := bus.OutboundMessage{Destination: admin, Text: deliveryFailureNotice(failed)}
		if err := e.sender.Send(ctx, notice); err != nil {
			e.log.Warn("round.send_failed", "club", t.ClubID, "destination", admin, "error", err)
		}
	}
}

func summaryRecipients(t *tenant.Context, st *state.Round) []string {
	seen := map[string]bool{}
	var out []string
	for _, admin := range t.Admins() {
		if !seen[admin] {
			seen[admin] = true
			out = append(out, admin)
		}
	}
	for _, role := range sortedRoleNames(st.Accepted) {
		id := st.Accepted[role].WAID
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func roleByName(cat *catalog.Club, name string) (catalog.Role, bool) {
	for _, r := range cat.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return catalog.Role{Name: name, Difficulty: 1}, false
}

func displayName(cat *catalog.Club, id string) string {
	if m, err := cat.FindByID(id); err == nil {
		return m.Name
	}
	return id
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
