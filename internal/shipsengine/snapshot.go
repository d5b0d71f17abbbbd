package ships

import (
	"encoding/json"
	"fmt"
)

// ShipState is the durable form of a Ship.
type ShipState struct {
	Name           string `json:"name"`
	Size           Size   `json:"size"`
	Position       Cell   `json:"position"`
	DestroyedParts []Cell `json:"destroyed_parts"`
}

// SideState is everything one player owns on the board.
type SideState struct {
	Ships  []ShipState `json:"ships"`
	Unused []Size      `json:"unused"`
	Misses []Cell      `json:"misses"`
}

// Snapshot is the serialised board used for persistence and resume.
type Snapshot struct {
	Rules        Rules              `json:"rules"`
	ActivePlayer int                `json:"active_player"`
	Sides        [Players]SideState `json:"sides"`
}

func (b *Board) Snapshot() Snapshot {
	snap := Snapshot{Rules: b.Rules(), ActivePlayer: b.active}
	for p := 0; p < Players; p++ {
		side := SideState{
			Ships:  make([]ShipState, 0, len(b.ships[p])),
			Unused: append([]Size{}, b.unused[p]...),
			Misses: append([]Cell{}, b.misses[p]...),
		}
		for _, s := range b.ships[p] {
			side.Ships = append(side.Ships, ShipState{
				Name:           s.Name,
				Size:           s.Size,
				Position:       s.Position,
				DestroyedParts: append([]Cell{}, s.destroyed...),
			})
		}
		snap.Sides[p] = side
	}
	return snap
}

// Restore rebuilds a board from a snapshot, checking that it could have
// been produced by play under its own rules.
func Restore(snap Snapshot) (*Board, error) {
	if err := snap.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if !validPlayer(snap.ActivePlayer) {
		return nil, fmt.Errorf("%w: active player %d", ErrInvalidSnapshot, snap.ActivePlayer)
	}
	b := &Board{rules: snap.Rules, active: snap.ActivePlayer}
	b.rules.Fleet = append([]Size(nil), snap.Rules.Fleet...)

	for p := 0; p < Players; p++ {
		side := snap.Sides[p]
		if len(side.Ships)+len(side.Unused) != len(snap.Rules.Fleet) {
			return nil, fmt.Errorf("%w: player %d has %d ships and %d unused, fleet has %d",
				ErrInvalidSnapshot, p, len(side.Ships), len(side.Unused), len(snap.Rules.Fleet))
		}
		b.unused[p] = append([]Size(nil), side.Unused...)
		for _, st := range side.Ships {
			if err := b.IsValidPlacement(p, st.Size, st.Position); err != nil {
				return nil, fmt.Errorf("%w: ship %q: %v", ErrInvalidSnapshot, st.Name, err)
			}
			ship := NewShip(st.Name, st.Size, st.Position)
			for _, off := range st.DestroyedParts {
				if !ship.Hit(st.Position.Add(off)) {
					return nil, fmt.Errorf("%w: ship %q: bad destroyed part %s", ErrInvalidSnapshot, st.Name, off)
				}
			}
			b.ships[p] = append(b.ships[p], ship)
		}
		for _, m := range side.Misses {
			if !b.inside(m, Size{W: 1, H: 1}) {
				return nil, fmt.Errorf("%w: miss %s off board", ErrInvalidSnapshot, m)
			}
		}
		b.misses[p] = append([]Cell(nil), side.Misses...)
	}
	return b, nil
}

func (s Snapshot) MarshalBinary() ([]byte, error) { return json.Marshal(s) }

func (s *Snapshot) UnmarshalBinary(data []byte) error { return json.Unmarshal(data, s) }
