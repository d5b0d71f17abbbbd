package ships

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func assertSnapshotsEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		wj, _ := json.Marshal(want)
		gj, _ := json.Marshal(got)
		t.Fatalf("snapshots differ\nwant: %s\ngot:  %s", wj, gj)
	}
}

func playedBoard(t *testing.T) *Board {
	t.Helper()
	rules := DefaultRules()
	rules.Fleet = []Size{{1, 3}, {1, 2}, {2, 2}}
	b, err := NewBoard(rules)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	mustPlace(t, b, 0, Placement{Length: 3, Orientation: Vertical, Position: Cell{0, 0}, Name: "long"})
	mustPlace(t, b, 0, Placement{Size: Size{2, 2}, Position: Cell{4, 4}})
	mustPlace(t, b, 1, Placement{Template: Boat, Orientation: Horizontal, Position: Cell{8, 9}})
	return b
}

func TestSnapshotRoundTripDuringSetup(t *testing.T) {
	b := playedBoard(t)
	snap := b.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := Restore(decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	assertSnapshotsEqual(t, snap, restored.Snapshot())
	if restored.Phase() != Setup {
		t.Fatalf("phase = %s", restored.Phase())
	}
	if got := len(restored.Remaining(1)); got != 2 {
		t.Fatalf("player 1 remaining = %d, want 2", got)
	}
}

func TestSnapshotRoundTripMidGame(t *testing.T) {
	b := playedBoard(t)
	mustPlace(t, b, 1, Placement{Length: 3, Orientation: Horizontal, Position: Cell{0, 0}})
	mustPlace(t, b, 1, Placement{Size: Size{2, 2}, Position: Cell{5, 5}})

	b.Attack(0, Cell{0, 0})
	b.Attack(0, Cell{1, 0})
	b.Attack(0, Cell{9, 0})
	b.Attack(1, Cell{0, 2})
	b.Attack(1, Cell{4, 5})
	b.Attack(1, Cell{3, 3})

	data, err := b.Snapshot().MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := Restore(decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	assertSnapshotsEqual(t, b.Snapshot(), restored.Snapshot())

	if restored.ActivePlayer() != b.ActivePlayer() {
		t.Fatalf("active = %d, want %d", restored.ActivePlayer(), b.ActivePlayer())
	}
	for p := 0; p < Players; p++ {
		for i, s := range b.Ships(p) {
			r := restored.Ships(p)[i]
			if r.Alive() != s.Alive() || !reflect.DeepEqual(r.DestroyedParts(), s.DestroyedParts()) {
				t.Fatalf("player %d ship %d differs after restore", p, i)
			}
		}
	}
}

func TestRestoreRejectsBrokenSnapshots(t *testing.T) {
	good := playedBoard(t).Snapshot()

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"active player", func(s *Snapshot) { s.ActivePlayer = 3 }},
		{"missing pool entry", func(s *Snapshot) { s.Sides[1].Unused = s.Sides[1].Unused[:1] }},
		{"ship off board", func(s *Snapshot) { s.Sides[0].Ships[0].Position = Cell{9, 9} }},
		{"destroyed part off ship", func(s *Snapshot) { s.Sides[0].Ships[0].DestroyedParts = []Cell{{3, 0}} }},
		{"duplicate destroyed part", func(s *Snapshot) { s.Sides[0].Ships[0].DestroyedParts = []Cell{{0, 1}, {0, 1}} }},
		{"miss off board", func(s *Snapshot) { s.Sides[0].Misses = []Cell{{-1, 0}} }},
		{"bad rules", func(s *Snapshot) { s.Rules.Width = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(good)
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tt.mutate(&snap)
			if _, err := Restore(snap); !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("err = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := playedBoard(t)
	c := b.Clone()
	c.Ships(0)[0].Hit(Cell{0, 0})
	if len(b.Ships(0)[0].DestroyedParts()) != 0 {
		t.Fatalf("clone shares ship state with original")
	}
}
