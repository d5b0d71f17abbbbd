package ships

// Ship is one axis-aligned vessel. Position is its top-left cell and
// destroyed parts are stored as offsets from it.
type Ship struct {
	Name     string
	Size     Size
	Position Cell

	destroyed []Cell
	alive     bool
}

func NewShip(name string, size Size, pos Cell) *Ship {
	return &Ship{Name: name, Size: size, Position: pos, alive: true}
}

// On reports whether cell lies inside the ship.
func (s *Ship) On(cell Cell) bool {
	return rectOf(s.Position, s.Size).contains(cell)
}

// Hit registers a shot at cell. It returns true only when an intact part of
// a floating ship was struck; misses and repeated shots return false.
func (s *Ship) Hit(cell Cell) bool {
	if !s.alive || !s.On(cell) {
		return false
	}
	offset := cell.Sub(s.Position)
	if s.isDestroyed(offset) {
		return false
	}
	s.destroyed = append(s.destroyed, offset)
	if len(s.destroyed) >= s.Size.Area() {
		s.alive = false
	}
	return true
}

func (s *Ship) Alive() bool { return s.alive }

// HitAt reports whether cell is on the ship and already destroyed.
func (s *Ship) HitAt(cell Cell) bool {
	return s.On(cell) && s.isDestroyed(cell.Sub(s.Position))
}

// DestroyedParts returns the hit offsets in the order they were hit.
func (s *Ship) DestroyedParts() []Cell {
	return append([]Cell(nil), s.destroyed...)
}

// Cells lists every absolute cell the ship covers, row by row.
func (s *Ship) Cells() []Cell {
	cells := make([]Cell, 0, s.Size.Area())
	for y := 0; y < s.Size.H; y++ {
		for x := 0; x < s.Size.W; x++ {
			cells = append(cells, s.Position.Add(Cell{X: x, Y: y}))
		}
	}
	return cells
}

func (s *Ship) isDestroyed(offset Cell) bool {
	for _, d := range s.destroyed {
		if d == offset {
			return true
		}
	}
	return false
}

func (s *Ship) clone() *Ship {
	c := *s
	c.destroyed = append([]Cell(nil), s.destroyed...)
	return &c
}
