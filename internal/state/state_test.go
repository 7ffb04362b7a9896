package state

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	var r Round
	if err := json.Unmarshal([]byte(`{"round": 3}`), &r); err != nil {
		t.Fatal(err)
	}
	r.Normalize()
	if r.Pending == nil || r.Accepted == nil || r.MembersCycle == nil {
		t.Fatal("maps still nil after Normalize")
	}
	if r.Round != 3 {
		t.Errorf("round = %d, want 3", r.Round)
	}
}

func TestPendingRoleFor(t *testing.T) {
	r := New()
	r.Pending["Orador"] = &PendingOffer{Candidate: "111", DeclinedBy: []string{}}

	role, offer, ok := r.PendingRoleFor("111")
	if !ok || role != "Orador" || offer.Candidate != "111" {
		t.Fatalf("PendingRoleFor = %q, %v, %v", role, offer, ok)
	}
	if _, _, ok := r.PendingRoleFor("222"); ok {
		t.Error("found offer for member without one")
	}
}

func TestBusyIDs(t *testing.T) {
	r := New()
	r.Pending["Orador"] = &PendingOffer{Candidate: "111"}
	r.Accepted["Evaluador"] = AcceptedRole{WAID: "222", Name: "Beto"}

	busy := r.BusyIDs()
	if !busy["111"] || !busy["222"] {
		t.Errorf("busy = %v, want 111 and 222", busy)
	}
	if busy["333"] {
		t.Error("unexpected busy id")
	}
}

func TestDeclined(t *testing.T) {
	offer := &PendingOffer{Candidate: "222", DeclinedBy: []string{"111"}}
	if !offer.Declined("111") {
		t.Error("111 should be declined")
	}
	if offer.Declined("222") {
		t.Error("222 should not be declined")
	}
}
