package router

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rolesclub/rolesbot/internal/bus"
	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/round"
	"github.com/rolesclub/rolesbot/internal/sessions"
	"github.com/rolesclub/rolesbot/internal/tenant"
)

const (
	adminID      = "900000001"
	multiAdminID = "900000009"
	anaID        = "111000111"
	betoID       = "222000222"
	strangerID   = "555000555"
)

type recorder struct {
	mu   sync.Mutex
	msgs []bus.OutboundMessage
}

func (r *recorder) Send(_ context.Context, msg bus.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) last(dest string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Destination == dest {
			return r.msgs[i].Text
		}
	}
	return ""
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *tenant.Registry, *recorder) {
	t.Helper()
	dir := t.TempDir()
	for _, s := range []tenant.Seed{
		{
			ClubID: "club-a",
			Admins: []string{adminID, multiAdminID},
			Members: []tenant.SeedMember{
				{Name: "Ana", ID: anaID, Level: 4},
				{Name: "Beto", ID: betoID, Level: 3},
			},
			Roles: []catalog.Role{
				{Name: "Orador", Difficulty: 3},
				{Name: "Cronometrista", Difficulty: 1},
			},
		},
		{
			ClubID:  "club-b",
			Admins:  []string{multiAdminID},
			Members: []tenant.SeedMember{{Name: "Carla", ID: "333000333", Level: 2}},
			Roles:   []catalog.Role{{Name: "Orador", Difficulty: 3}},
		},
	} {
		if _, err := s.Apply(dir); err != nil {
			t.Fatalf("seed %s: %v", s.ClubID, err)
		}
	}

	reg, err := tenant.Load(dir)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	rec := &recorder{}
	d := NewDispatcher(reg, round.NewEngine(rec), NewSessionManager(sessions.NewMemory()), rec)
	return d, reg, rec
}

func send(d *Dispatcher, sender, text string) {
	d.Handle(context.Background(), bus.InboundMessage{SenderID: sender, Text: text, MessageID: "m1"})
}

func TestHolaShowsRootMenu(t *testing.T) {
	d, _, rec := newTestDispatcher(t)

	send(d, anaID, "Hola")
	if got := rec.last(anaID); !strings.Contains(got, "*1* Menú de socio") {
		t.Errorf("root menu = %q", got)
	}
	if strings.Contains(rec.last(anaID), "administración") {
		t.Error("member sees admin option")
	}

	send(d, adminID, "hola")
	if got := rec.last(adminID); !strings.Contains(got, "administración") {
		t.Errorf("admin root menu = %q", got)
	}
}

func TestUnknownSender(t *testing.T) {
	d, _, rec := newTestDispatcher(t)
	send(d, strangerID, "mi rol")
	if got := rec.last(strangerID); !strings.Contains(got, "No encuentro tu número") {
		t.Errorf("stranger reply = %q", got)
	}
}

func TestOfferReplyBeatsMenus(t *testing.T) {
	d, reg, rec := newTestDispatcher(t)

	// Put Beto inside the root menu, then open a round so he holds an offer.
	send(d, betoID, "hola")
	send(d, adminID, "iniciar")

	tc, _ := reg.Get("club-a")
	tc.Lock()
	role, _, ok := tc.Round().PendingRoleFor(betoID)
	tc.Unlock()
	if !ok {
		t.Fatal("beto has no offer after start")
	}

	// "1" must resolve the offer, not pick menu entry 1.
	send(d, betoID, "1")
	if got := rec.last(betoID); !strings.Contains(got, role) || !strings.Contains(got, "Gracias") {
		t.Errorf("accept reply = %q", got)
	}
	tc.Lock()
	_, accepted := tc.Round().AcceptedRoleFor(betoID)
	tc.Unlock()
	if !accepted {
		t.Error("offer not accepted via numeric reply")
	}
}

func TestRejectViaKeyword(t *testing.T) {
	d, reg, rec := newTestDispatcher(t)
	send(d, adminID, "iniciar")

	tc, _ := reg.Get("club-a")
	tc.Lock()
	_, _, ok := tc.Round().PendingRoleFor(anaID)
	tc.Unlock()
	if !ok {
		t.Fatal("ana has no offer")
	}

	send(d, anaID, "RECHAZO")
	if got := rec.last(anaID); !strings.Contains(got, "Gracias por avisar") {
		t.Errorf("reject ack = %q", got)
	}
}

func TestAcceptWithoutOfferExplains(t *testing.T) {
	d, _, rec := newTestDispatcher(t)
	send(d, anaID, "acepto")
	if got := rec.last(anaID); !strings.Contains(got, "propuesta pendiente") {
		t.Errorf("reply = %q", got)
	}
}

func TestRootMenuSelection(t *testing.T) {
	d, _, rec := newTestDispatcher(t)

	send(d, anaID, "hola")
	send(d, anaID, "1")
	if got := rec.last(anaID); !strings.Contains(got, "Menú de socio") {
		t.Fatalf("member menu = %q", got)
	}

	send(d, anaID, "1")
	if got := rec.last(anaID); !strings.Contains(got, "No tienes asignaciones") {
		t.Errorf("mi rol via menu = %q", got)
	}

	send(d, anaID, "2")
	if got := rec.last(anaID); !strings.Contains(got, "Reunión #0") {
		t.Errorf("resumen via menu = %q", got)
	}

	send(d, anaID, "0")
	if got := rec.last(anaID); !strings.Contains(got, "*1* Menú de socio") {
		t.Errorf("back should show root menu, got %q", got)
	}
}

func TestAdminOptionHiddenFromMembers(t *testing.T) {
	d, _, rec := newTestDispatcher(t)

	// Option 2 is not rendered for non-admins, so picking it behaves
	// like any other stray number: the root menu again, no error.
	send(d, anaID, "hola")
	send(d, anaID, "2")
	got := rec.last(anaID)
	if strings.Contains(got, "administradores") {
		t.Errorf("member got an authorization error: %q", got)
	}
	if !strings.Contains(got, "*1* Menú de socio") {
		t.Errorf("expected root menu, got %q", got)
	}
}

func TestRapidDoubleSendsSerialized(t *testing.T) {
	d, _, rec := newTestDispatcher(t)

	// Each handled message yields exactly one reply to the admin, so
	// interleaved double-sends must still account for every message.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); send(d, adminID, "hola") }()
		go func() { defer wg.Done(); send(d, adminID, "2") }()
		wg.Wait()
	}

	rec.mu.Lock()
	n := len(rec.msgs)
	rec.mu.Unlock()
	if n != 20 {
		t.Errorf("replies = %d, want 20", n)
	}
	switch mode := d.sessions.Get(adminID).Mode; mode {
	case ModeRoot, ModeMember, ModeAdmin:
	default:
		t.Errorf("session mode = %q after concurrent sends", mode)
	}
}

func TestAdminMenuFlow(t *testing.T) {
	d, reg, rec := newTestDispatcher(t)

	send(d, adminID, "hola")
	send(d, adminID, "2")
	if got := rec.last(adminID); !strings.Contains(got, "Administración de *club-a*") {
		t.Fatalf("admin menu = %q", got)
	}

	// Option 6 prompts for a member, then the free-text line adds them.
	send(d, adminID, "6")
	if got := rec.last(adminID); !strings.Contains(got, "Nombre, número") {
		t.Fatalf("add prompt = %q", got)
	}
	send(d, adminID, "María Pérez, +52 1 55 1234 5678")

	tc, _ := reg.Get("club-a")
	tc.Lock()
	m, err := tc.Catalog().FindByID("5215512345678")
	tc.Unlock()
	if err != nil {
		t.Fatal("member not added via menu")
	}
	if m.Name != "María Pérez" {
		t.Errorf("name = %q, accents must survive", m.Name)
	}
	if got := rec.last(adminID); !strings.Contains(got, "Administración") {
		t.Errorf("should return to admin menu, got %q", got)
	}

	// Option 5 lists members, option 0 exits.
	send(d, adminID, "5")
	if got := rec.last(adminID); !strings.Contains(got, "María Pérez") {
		t.Errorf("member list = %q", got)
	}
	send(d, adminID, "0")
	if got := rec.last(adminID); !strings.Contains(got, "*1* Menú de socio") {
		t.Errorf("exit should show root menu, got %q", got)
	}
}

func TestAwaitingPromptCancel(t *testing.T) {
	d, _, rec := newTestDispatcher(t)
	send(d, adminID, "hola")
	send(d, adminID, "2")
	send(d, adminID, "7")
	if got := rec.last(adminID); !strings.Contains(got, "eliminar") {
		t.Fatalf("remove prompt = %q", got)
	}
	send(d, adminID, "0")
	if got := rec.last(adminID); !strings.Contains(got, "Administración") {
		t.Errorf("cancel should return to admin menu, got %q", got)
	}
}

func TestMultiClubAdminPick(t *testing.T) {
	d, reg, rec := newTestDispatcher(t)

	send(d, multiAdminID, "iniciar")
	if got := rec.last(multiAdminID); !strings.Contains(got, "varios clubes") {
		t.Fatalf("expected pick menu, got %q", got)
	}

	// Clubs are listed in stable order: 1=club-a, 2=club-b.
	send(d, multiAdminID, "2")
	if got := rec.last(multiAdminID); !strings.Contains(got, "club-b") {
		t.Fatalf("pick reply = %q", got)
	}

	// Commands now target club-b.
	send(d, multiAdminID, "1")
	tc, _ := reg.Get("club-b")
	tc.Lock()
	roundB := tc.Round().Round
	tc.Unlock()
	if roundB != 1 {
		t.Errorf("club-b round = %d, want 1", roundB)
	}
	ta, _ := reg.Get("club-a")
	ta.Lock()
	roundA := ta.Round().Round
	ta.Unlock()
	if roundA != 0 {
		t.Errorf("club-a round = %d, want untouched 0", roundA)
	}
}

func TestUnauthorizedCommand(t *testing.T) {
	d, _, rec := newTestDispatcher(t)
	send(d, anaID, "iniciar")
	if got := rec.last(anaID); !strings.Contains(got, "administradores") {
		t.Errorf("unauthorized reply = %q", got)
	}
}

func TestLegacyAddAndRemove(t *testing.T) {
	d, reg, rec := newTestDispatcher(t)

	send(d, adminID, "agregar Elena, 666000666")
	tc, _ := reg.Get("club-a")
	tc.Lock()
	_, err := tc.Catalog().FindByID("666000666")
	tc.Unlock()
	if err != nil {
		t.Fatal("legacy agregar failed")
	}

	send(d, adminID, "eliminar Elena")
	tc.Lock()
	_, err = tc.Catalog().FindByID("666000666")
	tc.Unlock()
	if err == nil {
		t.Fatal("legacy eliminar failed")
	}

	send(d, adminID, "eliminar Nadie")
	if got := rec.last(adminID); !strings.Contains(got, "No encontré") {
		t.Errorf("missing member reply = %q", got)
	}
}

func TestUnknownInputFallsBackToMenu(t *testing.T) {
	d, _, rec := newTestDispatcher(t)
	send(d, anaID, "qué onda")
	got := rec.last(anaID)
	if !strings.Contains(got, "No entendí") || !strings.Contains(got, "*1* Menú de socio") {
		t.Errorf("fallback = %q", got)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	seed := tenant.Seed{
		ClubID:  "club-a",
		Admins:  []string{adminID},
		Members: []tenant.SeedMember{{Name: "Ana", ID: anaID, Level: 3}},
		Roles:   []catalog.Role{{Name: "Orador", Difficulty: 3}},
	}
	if _, err := seed.Apply(dir); err != nil {
		t.Fatal(err)
	}
	reg, err := tenant.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	backing := sessions.NewMemory()
	rec := &recorder{}
	d := NewDispatcher(reg, round.NewEngine(rec), NewSessionManager(backing), rec)
	send(d, adminID, "hola")
	send(d, adminID, "2")

	// New dispatcher over the same backend: still inside the admin menu.
	d2 := NewDispatcher(reg, round.NewEngine(rec), NewSessionManager(backing), rec)
	send(d2, adminID, "5")
	if got := rec.last(adminID); !strings.Contains(got, "Socios") {
		t.Errorf("restarted session lost menu state, got %q", got)
	}
}

func TestCorruptSessionPayloadStartsFresh(t *testing.T) {
	backing := sessions.NewMemory()
	if err := backing.Save(anaID, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	m := NewSessionManager(backing)
	s := m.Get(anaID)
	if s.Mode != ModeRoot || s.ClubID != "" || s.Awaiting != AwaitNone {
		t.Errorf("corrupt payload should yield a fresh root session, got %+v", s)
	}
}
