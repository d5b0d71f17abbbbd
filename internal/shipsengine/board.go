package ships

import "fmt"

const Players = 2

type Phase uint8

const (
	Setup Phase = iota
	Active
	Finished
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "setup"
	case Active:
		return "active"
	case Finished:
		return "finished"
	}
	return "unknown"
}

type Outcome uint8

const (
	Miss Outcome = iota
	Hit
	Repeat
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case Repeat:
		return "repeat"
	}
	return "unknown"
}

// AttackResult describes one resolved attack.
type AttackResult struct {
	Cell     Cell
	Outcome  Outcome
	Attacker int
	// Sunk is the name of the ship this attack finished off, if any.
	Sunk string
	// Defeated is set when the attack sank the opponent's last ship.
	Defeated bool
	// Active is whose turn it is after the attack.
	Active int
}

// Placement is a request to put one ship on the board. Dimensions come from
// Template, or Length with Orientation, or an explicit Size, in that order.
type Placement struct {
	Template    Template
	Length      int
	Orientation Orientation
	Size        Size
	Position    Cell
	Name        string
}

func (p Placement) Dimensions() (Size, error) {
	length := p.Length
	if p.Template != NoTemplate {
		length = p.Template.Length()
		if length == 0 {
			return Size{}, ErrUnknownTemplate
		}
	}
	if length > 0 {
		return p.Orientation.Span(length)
	}
	if !p.Size.Valid() {
		return Size{}, ErrBadSize
	}
	return p.Size, nil
}

// Board is the grid and ship bookkeeping of one match between two players.
// It is not safe for concurrent use.
type Board struct {
	rules  Rules
	ships  [Players][]*Ship
	unused [Players][]Size
	misses [Players][]Cell
	active int
}

func NewBoard(rules Rules) (*Board, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	b := &Board{rules: rules, active: rules.StartingPlayer}
	b.rules.Fleet = append([]Size(nil), rules.Fleet...)
	for p := 0; p < Players; p++ {
		b.unused[p] = append([]Size(nil), rules.Fleet...)
	}
	return b, nil
}

func (b *Board) Rules() Rules {
	r := b.rules
	r.Fleet = append([]Size(nil), b.rules.Fleet...)
	return r
}

func (b *Board) ActivePlayer() int { return b.active }

func (b *Board) Ships(player int) []*Ship {
	if !validPlayer(player) {
		return nil
	}
	return append([]*Ship(nil), b.ships[player]...)
}

func (b *Board) Misses(player int) []Cell {
	if !validPlayer(player) {
		return nil
	}
	return append([]Cell(nil), b.misses[player]...)
}

// Remaining lists the ship sizes player has not placed yet.
func (b *Board) Remaining(player int) []Size {
	if !validPlayer(player) {
		return nil
	}
	return append([]Size(nil), b.unused[player]...)
}

func (b *Board) inside(pos Cell, size Size) bool {
	return pos.X >= 0 && pos.Y >= 0 &&
		pos.X+size.W <= b.rules.Width && pos.Y+size.H <= b.rules.Height
}

// IsValidPlacement returns nil when a ship of size could be placed at pos
// for player, otherwise the reason it could not.
func (b *Board) IsValidPlacement(player int, size Size, pos Cell) error {
	if !validPlayer(player) {
		return ErrUnknownPlayer
	}
	if !size.Valid() {
		return ErrBadSize
	}
	if !b.inside(pos, size) {
		return ErrOutOfBounds
	}
	want := rectOf(pos, size)
	for _, s := range b.ships[player] {
		have := rectOf(s.Position, s.Size)
		if want.overlapX(have) && want.overlapY(have) {
			return ErrOverlap
		}
		switch b.rules.Spacing {
		case SpacingCornersAllowed:
			if (want.overlapX(have) && want.nearY(have)) || (want.nearX(have) && want.overlapY(have)) {
				return ErrTooClose
			}
		case SpacingNoCorners:
			if want.nearX(have) && want.nearY(have) {
				return ErrTooClose
			}
		}
	}
	return nil
}

// PlaceShip places one ship from player's unused pool. On error the board
// is left untouched.
func (b *Board) PlaceShip(player int, p Placement) (*Ship, error) {
	size, err := p.Dimensions()
	if err != nil {
		return nil, &PlacementError{Player: player, Size: size, Position: p.Position, Reason: err}
	}
	if !validPlayer(player) {
		return nil, &PlacementError{Player: player, Size: size, Position: p.Position, Reason: ErrUnknownPlayer}
	}
	idx := -1
	for i, s := range b.unused[player] {
		if s.Matches(size) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &PlacementError{Player: player, Size: size, Position: p.Position, Reason: ErrNotInPool}
	}
	if p.Name != "" && b.nameTaken(player, p.Name) {
		return nil, &PlacementError{Player: player, Size: size, Position: p.Position, Reason: ErrNameTaken}
	}
	if err := b.IsValidPlacement(player, size, p.Position); err != nil {
		return nil, &PlacementError{Player: player, Size: size, Position: p.Position, Reason: err}
	}

	b.unused[player] = append(b.unused[player][:idx:idx], b.unused[player][idx+1:]...)
	name := p.Name
	for n := len(b.ships[player]); name == "" || b.nameTaken(player, name); n++ {
		name = fmt.Sprintf("battleship_%d", n)
	}
	ship := NewShip(name, size, p.Position)
	b.ships[player] = append(b.ships[player], ship)
	return ship, nil
}

func (b *Board) nameTaken(player int, name string) bool {
	for _, s := range b.ships[player] {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Attack fires at cell on the opponent's side. A hit keeps the turn with the
// attacker; anything else is logged as a miss and passes the turn.
func (b *Board) Attack(attacker int, cell Cell) (AttackResult, error) {
	if !validPlayer(attacker) {
		return AttackResult{}, ErrUnknownPlayer
	}
	if attacker != b.active {
		return AttackResult{}, ErrOutOfTurn
	}
	if !b.inside(cell, Size{W: 1, H: 1}) {
		return AttackResult{}, ErrOutOfBounds
	}

	res := AttackResult{Cell: cell, Attacker: attacker}
	opponent := Opponent(attacker)
	for _, s := range b.ships[opponent] {
		if s.Hit(cell) {
			res.Outcome = Hit
			if !s.Alive() {
				res.Sunk = s.Name
				res.Defeated = b.IsDefeated(opponent)
			}
			res.Active = b.active
			return res, nil
		}
	}

	res.Outcome = Miss
	if b.alreadyTried(attacker, cell) {
		res.Outcome = Repeat
	}
	b.misses[attacker] = append(b.misses[attacker], cell)
	b.active = opponent
	res.Active = b.active
	return res, nil
}

func (b *Board) alreadyTried(attacker int, cell Cell) bool {
	for _, s := range b.ships[Opponent(attacker)] {
		if s.HitAt(cell) {
			return true
		}
	}
	for _, m := range b.misses[attacker] {
		if m == cell {
			return true
		}
	}
	return false
}

// Pass hands the turn to the opponent without firing.
func (b *Board) Pass(player int) error {
	if !validPlayer(player) {
		return ErrUnknownPlayer
	}
	if player != b.active {
		return ErrOutOfTurn
	}
	b.active = Opponent(player)
	return nil
}

// IsDefeated is true when none of player's ships is afloat. A player with
// no ships counts as defeated.
func (b *Board) IsDefeated(player int) bool {
	if !validPlayer(player) {
		return false
	}
	for _, s := range b.ships[player] {
		if s.Alive() {
			return false
		}
	}
	return true
}

func (b *Board) SetupDone() bool {
	return len(b.unused[0]) == 0 && len(b.unused[1]) == 0
}

func (b *Board) Phase() Phase {
	if !b.SetupDone() {
		return Setup
	}
	if b.IsDefeated(0) || b.IsDefeated(1) {
		return Finished
	}
	return Active
}

// Winner returns the player whose opponent is defeated once setup is over.
func (b *Board) Winner() (int, bool) {
	if !b.SetupDone() {
		return 0, false
	}
	for p := 0; p < Players; p++ {
		if b.IsDefeated(Opponent(p)) && !b.IsDefeated(p) {
			return p, true
		}
	}
	return 0, false
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := &Board{rules: b.Rules(), active: b.active}
	for p := 0; p < Players; p++ {
		c.unused[p] = append([]Size(nil), b.unused[p]...)
		c.misses[p] = append([]Cell(nil), b.misses[p]...)
		c.ships[p] = make([]*Ship, len(b.ships[p]))
		for i, s := range b.ships[p] {
			c.ships[p][i] = s.clone()
		}
	}
	return c
}

func Opponent(player int) int { return (player + 1) % Players }

func validPlayer(p int) bool { return p >= 0 && p < Players }
