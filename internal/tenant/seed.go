package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/state"
	"github.com/rolesclub/rolesbot/internal/store"
)

// Seed describes one club to create or refresh. The serve path never
// writes these files except through admin ops; seeding is an operator
// action run before (or between) deployments.
type Seed struct {
	ClubID  string         `json:"club_id"`
	Admins  []string       `json:"admins"`
	Members []SeedMember   `json:"members"`
	Roles   []catalog.Role `json:"roles"`
	// PreserveState keeps an existing state.json, only backfilling
	// members_cycle entries for newly added members.
	PreserveState bool `json:"preserve_state"`
}

// SeedMember is a member row in a seed file.
type SeedMember struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	IsGuest bool   `json:"is_guest"`
	Level   int    `json:"level"`
}

var digitsOnly = regexp.MustCompile(`[^0-9]`)

// Validate normalizes phone numbers to digit form and rejects incomplete
// seeds before anything touches disk.
func (s *Seed) Validate() error {
	s.ClubID = strings.TrimSpace(s.ClubID)
	if s.ClubID == "" {
		return fmt.Errorf("club_id is required")
	}
	if len(s.Admins) == 0 {
		return fmt.Errorf("club %q: at least one admin is required", s.ClubID)
	}
	for i, a := range s.Admins {
		s.Admins[i] = digitsOnly.ReplaceAllString(a, "")
		if s.Admins[i] == "" {
			return fmt.Errorf("club %q: admin %d is not a phone number", s.ClubID, i)
		}
	}
	if len(s.Members) == 0 {
		return fmt.Errorf("club %q: at least one member is required", s.ClubID)
	}
	for i := range s.Members {
		m := &s.Members[i]
		m.Name = strings.TrimSpace(m.Name)
		m.ID = digitsOnly.ReplaceAllString(m.ID, "")
		if m.Name == "" || m.ID == "" {
			return fmt.Errorf("club %q: member %d needs a name and a phone number", s.ClubID, i)
		}
		if m.Level < 1 {
			m.Level = 1
		}
	}
	if len(s.Roles) == 0 {
		return fmt.Errorf("club %q: at least one role is required", s.ClubID)
	}
	for i, r := range s.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("club %q: role %d has an empty name", s.ClubID, i)
		}
		if r.Difficulty < 1 || r.Difficulty > 6 {
			return fmt.Errorf("club %q: role %q difficulty must be 1..6", s.ClubID, r.Name)
		}
	}
	return nil
}

// SeedResult reports what Apply changed.
type SeedResult struct {
	ClubDir      string
	CreatedState bool
}

// Apply writes club.json, creates or refreshes state.json, and merges the
// club's admins into the registry manifest. Idempotent: re-running for
// the same club rewrites the catalog and keeps historical state when
// PreserveState is set.
func (s *Seed) Apply(clubsDir string) (*SeedResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	club := &catalog.Club{Roles: s.Roles}
	for _, m := range s.Members {
		club.Members = append(club.Members, &catalog.Member{
			Name:      m.Name,
			ID:        m.ID,
			IsGuest:   m.IsGuest,
			Level:     m.Level,
			RolesDone: []string{},
		})
	}

	st := store.New(filepath.Join(clubsDir, s.ClubID))
	if err := st.SaveCatalog(club); err != nil {
		return nil, err
	}

	res := &SeedResult{ClubDir: st.Dir()}
	existing, err := st.LoadState()
	if err != nil || !s.PreserveState {
		existing = state.New()
		res.CreatedState = true
	}
	ensureCycleEntries(club, existing)
	if err := st.SaveState(existing); err != nil {
		return nil, err
	}

	if err := mergeRegistry(clubsDir, s.ClubID, s.Admins); err != nil {
		return nil, err
	}
	return res, nil
}

// mergeRegistry rewrites the club's admin list in registry.json, creating
// the manifest when absent. Admins from this seed replace the previous
// list; other clubs are untouched.
func mergeRegistry(clubsDir, clubID string, admins []string) error {
	path := filepath.Join(clubsDir, RegistryFileName)
	manifest := Manifest{Clubs: map[string]ClubEntry{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("decode registry manifest: %w", err)
		}
		if manifest.Clubs == nil {
			manifest.Clubs = map[string]ClubEntry{}
		}
	}

	uniq := map[string]bool{}
	var merged []string
	for _, a := range admins {
		if !uniq[a] {
			uniq[a] = true
			merged = append(merged, a)
		}
	}
	manifest.Clubs[clubID] = ClubEntry{Admins: merged}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(clubsDir, RegistryFileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
