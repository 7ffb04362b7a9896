// Package state holds the per-club round ledger. The JSON layout matches
// the state.json wire format and is shared with the seeder:
//
//	{ "round": int,
//	  "pending":  { role: {candidate, declined_by, accepted} },
//	  "accepted": { role: {waid, name} },
//	  "members_cycle": { id: [role, ...] },
//	  "last_summary": string|null,
//	  "canceled": bool }
package state

// PendingOffer is a role offered to a candidate who has not yet replied.
// Accepted is always false while the offer sits in Pending; acceptance
// moves the entry to the Accepted map instead of flipping the flag.
type PendingOffer struct {
	Candidate  string   `json:"candidate"`
	DeclinedBy []string `json:"declined_by"`
	Accepted   bool     `json:"accepted"`
}

// Declined reports whether the given member already declined this offer.
func (p *PendingOffer) Declined(id string) bool {
	for _, d := range p.DeclinedBy {
		if d == id {
			return true
		}
	}
	return false
}

// AcceptedRole records who took a role. The display name is denormalized
// so summaries render without a catalog join and survive mid-round renames.
type AcceptedRole struct {
	WAID string `json:"waid"`
	Name string `json:"name"`
}

// Round is the assignment ledger for one club.
type Round struct {
	Round        int                      `json:"round"`
	Pending      map[string]*PendingOffer `json:"pending"`
	Accepted     map[string]AcceptedRole  `json:"accepted"`
	MembersCycle map[string][]string      `json:"members_cycle"`
	LastSummary  *string                  `json:"last_summary"`
	Canceled     bool                     `json:"canceled"`
}

// New returns an empty zero round.
func New() *Round {
	return &Round{
		Pending:      map[string]*PendingOffer{},
		Accepted:     map[string]AcceptedRole{},
		MembersCycle: map[string][]string{},
	}
}

// Normalize ensures all maps are non-nil after JSON decoding.
func (r *Round) Normalize() {
	if r.Pending == nil {
		r.Pending = map[string]*PendingOffer{}
	}
	if r.Accepted == nil {
		r.Accepted = map[string]AcceptedRole{}
	}
	if r.MembersCycle == nil {
		r.MembersCycle = map[string][]string{}
	}
}

// HasOpenOffers reports whether any role still awaits a reply.
func (r *Round) HasOpenOffers() bool { return len(r.Pending) > 0 }

// PendingRoleFor returns the role currently offered to the member.
// At most one such role exists per member within a round.
func (r *Round) PendingRoleFor(id string) (string, *PendingOffer, bool) {
	for role, offer := range r.Pending {
		if offer.Candidate == id {
			return role, offer, true
		}
	}
	return "", nil, false
}

// AcceptedRoleFor returns the role the member accepted in this round.
func (r *Round) AcceptedRoleFor(id string) (string, bool) {
	for role, acc := range r.Accepted {
		if acc.WAID == id {
			return role, true
		}
	}
	return "", false
}

// BusyIDs returns every member currently holding an offer or an accepted
// role. These ids are excluded from further selection in the round.
func (r *Round) BusyIDs() map[string]bool {
	busy := make(map[string]bool, len(r.Pending)+len(r.Accepted))
	for _, offer := range r.Pending {
		busy[offer.Candidate] = true
	}
	for _, acc := range r.Accepted {
		busy[acc.WAID] = true
	}
	return busy
}

// CycleFor returns the member's completed roles in the current cycle.
// Members without an entry are treated as fresh.
func (r *Round) CycleFor(id string) []string {
	return r.MembersCycle[id]
}
