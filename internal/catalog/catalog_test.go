package catalog

import (
	"errors"
	"testing"
)

func testClub() *Club {
	return &Club{
		Members: []*Member{
			{Name: "Ana", ID: "111111", Level: 3, RolesDone: []string{}},
			{Name: "Beto", ID: "222222", Level: 1, RolesDone: []string{}},
		},
		Roles: []Role{
			{Name: "Evaluador", Difficulty: 4},
			{Name: "Cronometrista", Difficulty: 1},
			{Name: "Orador", Difficulty: 4},
		},
	}
}

func TestResolve(t *testing.T) {
	c := testClub()

	m, err := c.Resolve("111111")
	if err != nil || m.Name != "Ana" {
		t.Fatalf("Resolve by id = %v, %v", m, err)
	}
	m, err = c.Resolve("Beto")
	if err != nil || m.ID != "222222" {
		t.Fatalf("Resolve by name = %v, %v", m, err)
	}
	if _, err := c.Resolve("nadie"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve miss = %v, want ErrNotFound", err)
	}
}

func TestAddMember(t *testing.T) {
	c := testClub()

	if err := c.AddMember(&Member{Name: "Carla", ID: "333333"}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	m, _ := c.FindByID("333333")
	if m.Level != 1 {
		t.Errorf("new member level = %d, want default 1", m.Level)
	}
	if m.RolesDone == nil {
		t.Error("new member RolesDone is nil")
	}

	err := c.AddMember(&Member{Name: "Otra Ana", ID: "111111"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate id = %v, want ErrDuplicateID", err)
	}
}

func TestRemoveMember(t *testing.T) {
	c := testClub()
	if err := c.RemoveMember("222222"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := c.FindByID("222222"); !errors.Is(err, ErrNotFound) {
		t.Error("member still present after removal")
	}
	if err := c.RemoveMember("222222"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double removal = %v, want ErrNotFound", err)
	}
}

func TestRolesByDifficulty(t *testing.T) {
	c := testClub()
	got := c.RolesByDifficulty()
	want := []string{"Evaluador", "Orador", "Cronometrista"}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].Name, name)
		}
	}
	// Original slice untouched.
	if c.Roles[0].Name != "Evaluador" || c.Roles[1].Name != "Cronometrista" {
		t.Error("RolesByDifficulty mutated the catalog order")
	}
}

func TestRecordCompletion(t *testing.T) {
	c := testClub()

	if err := c.RecordCompletion("111111", "Evaluador"); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	m, _ := c.FindByID("111111")
	if !m.HasDone("Evaluador") {
		t.Error("role not recorded")
	}

	// Repeats do not duplicate.
	c.RecordCompletion("111111", "Evaluador")
	if len(m.RolesDone) != 1 {
		t.Errorf("len(RolesDone) = %d after repeat, want 1", len(m.RolesDone))
	}

	// Completing every role resets the list.
	c.RecordCompletion("111111", "Cronometrista")
	c.RecordCompletion("111111", "Orador")
	if len(m.RolesDone) != 0 {
		t.Errorf("RolesDone = %v after full cycle, want empty", m.RolesDone)
	}

	if err := c.RecordCompletion("999999", "Orador"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown member = %v, want ErrNotFound", err)
	}
}

func TestMembersSortedByName(t *testing.T) {
	c := testClub()
	c.AddMember(&Member{Name: "Aaron", ID: "444444"})
	got := c.MembersSortedByName()
	if got[0].Name != "Aaron" || got[1].Name != "Ana" || got[2].Name != "Beto" {
		t.Fatalf("sorted = [%s %s %s]", got[0].Name, got[1].Name, got[2].Name)
	}
}
