package ships

import "testing"

func TestShipOn(t *testing.T) {
	s := NewShip("a", Size{W: 3, H: 2}, Cell{X: 4, Y: 5})

	inside := []Cell{{4, 5}, {6, 5}, {4, 6}, {6, 6}}
	outside := []Cell{{3, 5}, {7, 5}, {4, 4}, {4, 7}, {0, 0}}
	for _, c := range inside {
		if !s.On(c) {
			t.Errorf("expected %s on ship", c)
		}
	}
	for _, c := range outside {
		if s.On(c) {
			t.Errorf("expected %s off ship", c)
		}
	}
}

func TestShipHitIsIdempotent(t *testing.T) {
	s := NewShip("a", Size{W: 1, H: 3}, Cell{X: 0, Y: 0})

	if !s.Hit(Cell{0, 1}) {
		t.Fatalf("first hit should register")
	}
	if s.Hit(Cell{0, 1}) {
		t.Fatalf("second hit on same cell should not register")
	}
	if got := len(s.DestroyedParts()); got != 1 {
		t.Fatalf("destroyed parts = %d, want 1", got)
	}
	if s.Hit(Cell{1, 1}) {
		t.Fatalf("off-ship hit should not register")
	}
}

func TestShipSinksOnLastDistinctCell(t *testing.T) {
	s := NewShip("square", Size{W: 2, H: 2}, Cell{X: 1, Y: 1})
	cells := []Cell{{1, 1}, {2, 1}, {1, 2}, {2, 2}}

	for i, c := range cells {
		if !s.Alive() {
			t.Fatalf("ship sank early before hit %d", i)
		}
		s.Hit(c)
		// repeating a shot never sinks anything
		s.Hit(c)
	}
	if s.Alive() {
		t.Fatalf("ship should be sunk after all %d cells", len(cells))
	}
	if s.Hit(Cell{1, 1}) {
		t.Fatalf("sunk ship must not report hits")
	}
	want := []Cell{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	got := s.DestroyedParts()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("destroyed parts = %v, want %v", got, want)
		}
	}
}

func TestShipCells(t *testing.T) {
	s := NewShip("a", Size{W: 2, H: 1}, Cell{X: 3, Y: 7})
	cells := s.Cells()
	if len(cells) != 2 || cells[0] != (Cell{3, 7}) || cells[1] != (Cell{4, 7}) {
		t.Fatalf("cells = %v", cells)
	}
}
