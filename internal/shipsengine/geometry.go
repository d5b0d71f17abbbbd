package ships

import "fmt"

// Cell is a grid coordinate, X grows to the right and Y grows down.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) Add(o Cell) Cell { return Cell{X: c.X + o.X, Y: c.Y + o.Y} }
func (c Cell) Sub(o Cell) Cell { return Cell{X: c.X - o.X, Y: c.Y - o.Y} }

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Size is the axis-aligned extent of a ship, W columns by H rows.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

func (s Size) Area() int { return s.W * s.H }
func (s Size) Rotate() Size { return Size{W: s.H, H: s.W} }
func (s Size) Valid() bool { return s.W >= 1 && s.H >= 1 }
func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

// Matches reports whether two sizes describe the same ship in either rotation.
func (s Size) Matches(o Size) bool {
	return s == o || s == o.Rotate()
}

type Orientation byte

const (
	NoOrientation Orientation = 0
	Horizontal    Orientation = 'h'
	Vertical      Orientation = 'v'
)

func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "h", "H", "horizontal":
		return Horizontal, nil
	case "v", "V", "vertical":
		return Vertical, nil
	case "":
		return NoOrientation, nil
	}
	return NoOrientation, fmt.Errorf("unknown orientation %q", s)
}

// Span turns a straight ship length into a size.
func (o Orientation) Span(length int) (Size, error) {
	switch o {
	case Horizontal:
		return Size{W: length, H: 1}, nil
	case Vertical:
		return Size{W: 1, H: length}, nil
	}
	return Size{}, ErrBadOrientation
}

// rect is a half-open rectangle [x0,x1) x [y0,y1).
type rect struct {
	x0, y0, x1, y1 int
}

func rectOf(pos Cell, size Size) rect {
	return rect{x0: pos.X, y0: pos.Y, x1: pos.X + size.W, y1: pos.Y + size.H}
}

func (r rect) contains(c Cell) bool {
	return r.x0 <= c.X && c.X < r.x1 && r.y0 <= c.Y && c.Y < r.y1
}

// overlapX is true when the two column ranges share at least one column,
// nearX also accepts ranges that touch with no gap.
func (r rect) overlapX(o rect) bool { return r.x0 < o.x1 && o.x0 < r.x1 }
func (r rect) overlapY(o rect) bool { return r.y0 < o.y1 && o.y0 < r.y1 }
func (r rect) nearX(o rect) bool { return r.x0 <= o.x1 && o.x0 <= r.x1 }
func (r rect) nearY(o rect) bool { return r.y0 <= o.y1 && o.y0 <= r.y1 }
