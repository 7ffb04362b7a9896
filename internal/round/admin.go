package round

import (
	"context"
	"fmt"
	"strings"

	"github.com/rolesclub/rolesbot/internal/bus"
	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/tenant"
)

// AddMember inserts a new member at level 1 with an empty cycle and
// persists both stores. The id must be an E.164 digit string.
func (e *Engine) AddMember(ctx context.Context, t *tenant.Context, adminID, name, id string) error {
	if err := e.gate(t, adminID); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" || !waidPattern.MatchString(id) {
		return ErrInvalidID
	}

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	err := cat.AddMember(&catalog.Member{Name: name, ID: id, Level: 1, RolesDone: []string{}})
	if err != nil {
		t.Unlock()
		return err
	}
	st.MembersCycle[id] = []string{}

	if err := t.SaveCatalog(); err != nil {
		t.Unlock()
		return err
	}
	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("admin.member_added", "club", t.ClubID, "member", id, "by", adminID)
	e.deliver(ctx, t, []bus.OutboundMessage{{Destination: adminID, Text: memberAddedText(name, id)}})
	return nil
}

// RemoveMember deletes a member resolved by id or name. Removal is
// refused while the member is a candidate of a pending offer or holds an
// accepted role; RESET or completion frees them.
func (e *Engine) RemoveMember(ctx context.Context, t *tenant.Context, adminID, ref string) error {
	if err := e.gate(t, adminID); err != nil {
		return err
	}

	t.Lock()
	cat, st := t.Catalog(), t.Round()
	m, err := cat.Resolve(strings.TrimSpace(ref))
	if err != nil {
		t.Unlock()
		return err
	}
	if _, _, pending := st.PendingRoleFor(m.ID); pending {
		t.Unlock()
		return ErrMemberBusy
	}
	if _, accepted := st.AcceptedRoleFor(m.ID); accepted {
		t.Unlock()
		return ErrMemberBusy
	}

	name, id := m.Name, m.ID
	if err := cat.RemoveMember(id); err != nil {
		t.Unlock()
		return err
	}
	delete(st.MembersCycle, id)

	if err := t.SaveCatalog(); err != nil {
		t.Unlock()
		return err
	}
	if err := t.SaveState(); err != nil {
		t.Unlock()
		return err
	}
	t.Unlock()

	e.log.Info("admin.member_removed", "club", t.ClubID, "member", id, "by", adminID)
	e.deliver(ctx, t, []bus.OutboundMessage{{Destination: adminID, Text: memberRemovedText(name, id)}})
	return nil
}

// MembersList renders the roster sorted by name.
func (e *Engine) MembersList(t *tenant.Context, adminID string) (string, error) {
	if err := e.gate(t, adminID); err != nil {
		return "", err
	}

	t.Lock()
	defer t.Unlock()
	cat := t.Catalog()

	lines := []string{fmt.Sprintf("👥 Socios de %s:", t.ClubID)}
	for _, m := range cat.MembersSortedByName() {
		marker := ""
		if m.IsGuest {
			marker = " (invitado)"
		}
		lines = append(lines, fmt.Sprintf("• %s — %s (nivel %d)%s", m.Name, m.ID, m.Level, marker))
	}
	if len(cat.Members) == 0 {
		lines = append(lines, "• (ninguno)")
	}
	return strings.Join(lines, "\n"), nil
}
