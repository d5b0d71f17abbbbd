package ships

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPlacement = errors.New("invalid placement")

	ErrOutOfBounds     = errors.New("out of bounds")
	ErrOverlap         = errors.New("overlaps another ship")
	ErrTooClose        = errors.New("too close to another ship")
	ErrNotInPool       = errors.New("ship not available")
	ErrUnknownTemplate = errors.New("unknown ship template")
	ErrBadOrientation  = errors.New("orientation required")
	ErrBadSize         = errors.New("ship size must be at least 1x1")
	ErrNameTaken       = errors.New("ship name already in use")

	ErrOutOfTurn       = errors.New("not your turn")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// PlacementError is returned by every rejected placement. It matches
// ErrInvalidPlacement and the concrete reason with errors.Is.
type PlacementError struct {
	Player   int
	Size     Size
	Position Cell
	Reason   error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place %s at %s for player %d: %v", e.Size, e.Position, e.Player, e.Reason)
}

func (e *PlacementError) Unwrap() []error {
	return []error{ErrInvalidPlacement, e.Reason}
}
