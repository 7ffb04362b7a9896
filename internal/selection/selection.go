// Package selection implements the hierarchical candidate choice for a
// role. The function is pure: it never mutates its inputs and repeated
// calls with the same inputs return the same member.
package selection

import "github.com/rolesclub/rolesbot/internal/catalog"

type pick struct {
	member *catalog.Member
	done   map[string]bool
	count  int // roles completed this cycle, for the tie-break
}

// ChooseCandidate returns the member id to offer the role to, or "" when
// the eligible pool is empty. cycles maps member id to the roles completed
// in the current cycle (the round ledger's members_cycle); excluded holds
// every id already pending, accepted, or declined for this role. Guests
// are eligible under current policy.
//
// Tiers are scanned in order and the first non-empty tier wins:
//
//  1. level >= difficulty and the role not yet done this cycle.
//  2. level >= difficulty, repeaters allowed.
//  3. descending level from difficulty-1 down to 1, fresh before repeaters.
//
// Within a tier the candidate with the fewest completed roles wins; then
// name, then id, lexicographically.
func ChooseCandidate(club *catalog.Club, role catalog.Role, cycles map[string][]string, excluded map[string]bool) string {
	pool := make([]pick, 0, len(club.Members))
	for _, m := range club.Members {
		if excluded[m.ID] {
			continue
		}
		done := make(map[string]bool, len(cycles[m.ID]))
		for _, r := range cycles[m.ID] {
			done[r] = true
		}
		pool = append(pool, pick{member: m, done: done, count: len(cycles[m.ID])})
	}
	if len(pool) == 0 {
		return ""
	}

	d := role.Difficulty

	if id := best(pool, func(p pick) bool {
		return p.member.Level >= d && !p.done[role.Name]
	}); id != "" {
		return id
	}
	if id := best(pool, func(p pick) bool {
		return p.member.Level >= d && p.done[role.Name]
	}); id != "" {
		return id
	}
	for lvl := d - 1; lvl >= 1; lvl-- {
		if id := best(pool, func(p pick) bool {
			return p.member.Level == lvl && !p.done[role.Name]
		}); id != "" {
			return id
		}
		if id := best(pool, func(p pick) bool {
			return p.member.Level == lvl && p.done[role.Name]
		}); id != "" {
			return id
		}
	}
	return ""
}

// best returns the tie-break winner among pool entries matching the tier
// predicate, or "" when the tier is empty.
func best(pool []pick, tier func(pick) bool) string {
	var won *pick
	for i := range pool {
		p := &pool[i]
		if !tier(*p) {
			continue
		}
		if won == nil || less(p, won) {
			won = p
		}
	}
	if won == nil {
		return ""
	}
	return won.member.ID
}

func less(a, b *pick) bool {
	if a.count != b.count {
		return a.count < b.count
	}
	if a.member.Name != b.member.Name {
		return a.member.Name < b.member.Name
	}
	return a.member.ID < b.member.ID
}
