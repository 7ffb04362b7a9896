// Package catalog holds the per-club member and role catalog.
//
// The catalog is seeded externally (rolesbot seed) and mutated at runtime
// only by admin operations and by role acceptance. Serialization matches
// the club.json wire format:
//
//	{ "members": [ {name, id, is_guest, level, roles_done}, ... ],
//	  "roles":   [ {name, difficulty}, ... ] }
package catalog

import (
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned when a member lookup by id or name misses.
	ErrNotFound = errors.New("member not found")
	// ErrDuplicateID is returned when adding a member whose id is taken.
	ErrDuplicateID = errors.New("duplicate member id")
)

// Role is one meeting role. Difficulty runs 1 (easiest) to the number of
// tiers defined for the club, typically 6. Roles are immutable once defined.
type Role struct {
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
}

// Member is a club member or guest. ID is the WhatsApp number in E.164
// digit form without the leading "+", unique across clubs.
type Member struct {
	Name      string   `json:"name"`
	ID        string   `json:"id"`
	IsGuest   bool     `json:"is_guest"`
	Level     int      `json:"level"`
	RolesDone []string `json:"roles_done"`
}

// HasDone reports whether the member completed the role in the current cycle.
func (m *Member) HasDone(roleName string) bool {
	for _, r := range m.RolesDone {
		if r == roleName {
			return true
		}
	}
	return false
}

// Club is the catalog of one tenant: its members and its role set.
// Club is not safe for concurrent use; the owning tenant context
// serializes access.
type Club struct {
	Members []*Member `json:"members"`
	Roles   []Role    `json:"roles"`
}

// FindByID returns the member with the given id.
func (c *Club) FindByID(id string) (*Member, error) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// FindByName returns the first member with the given display name.
func (c *Club) FindByName(name string) (*Member, error) {
	for _, m := range c.Members {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// Resolve looks a member up by id first, then by name.
func (c *Club) Resolve(ref string) (*Member, error) {
	if m, err := c.FindByID(ref); err == nil {
		return m, nil
	}
	return c.FindByName(ref)
}

// AddMember inserts a member, refusing id collisions.
func (c *Club) AddMember(m *Member) error {
	if _, err := c.FindByID(m.ID); err == nil {
		return ErrDuplicateID
	}
	if m.Level < 1 {
		m.Level = 1
	}
	if m.RolesDone == nil {
		m.RolesDone = []string{}
	}
	c.Members = append(c.Members, m)
	return nil
}

// RemoveMember deletes the member with the given id.
func (c *Club) RemoveMember(id string) error {
	for i, m := range c.Members {
		if m.ID == id {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// HasRole reports whether the club defines a role with this name.
func (c *Club) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleCount returns the number of roles defined for the club.
func (c *Club) RoleCount() int { return len(c.Roles) }

// RolesByDifficulty returns the roles hardest-first. Ties break
// lexicographically by name so round iteration order is deterministic.
func (c *Club) RolesByDifficulty() []Role {
	roles := make([]Role, len(c.Roles))
	copy(roles, c.Roles)
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Difficulty != roles[j].Difficulty {
			return roles[i].Difficulty > roles[j].Difficulty
		}
		return roles[i].Name < roles[j].Name
	})
	return roles
}

// RecordCompletion appends the role to the member's completed list. When
// the list reaches the club's role count the cycle is complete and the
// list resets to empty, re-admitting the member as fresh for every role.
// Levels never change here; that is an explicit admin concern.
func (c *Club) RecordCompletion(memberID, roleName string) error {
	m, err := c.FindByID(memberID)
	if err != nil {
		return err
	}
	if !m.HasDone(roleName) {
		m.RolesDone = append(m.RolesDone, roleName)
	}
	if len(m.RolesDone) >= len(c.Roles) {
		m.RolesDone = []string{}
	}
	return nil
}

// MembersSortedByName returns the members ordered by display name.
func (c *Club) MembersSortedByName() []*Member {
	out := make([]*Member, len(c.Members))
	copy(out, c.Members)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
