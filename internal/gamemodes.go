package internal

import (
	"fmt"
	"math"
	"sort"

	"github.com/zefir/statki-go-backend/config"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

type GameMode uint16

const (
	ModeClassic GameMode = 1
	ModeStrict  GameMode = 2
	ModeOpen    GameMode = 3
	ModeCustom  GameMode = 4
)

func (m GameMode) String() string {
	if name, ok := ModeNames[m]; ok {
		return name
	}
	return "Unknown"
}

var ModeNames = map[GameMode]string{
	ModeClassic: "Classic",
	ModeStrict:  "Strict",
	ModeOpen:    "Open",
	ModeCustom:  "Custom",
}

var AvailableModes = []GameMode{
	ModeClassic,
	ModeStrict,
	ModeOpen,
	ModeCustom,
}

// Cells, ship sizes and ship counts travel as single bytes.
const (
	maxBoardSide = math.MaxUint8 + 1
	maxShipSide  = math.MaxUint8
	maxFleet     = math.MaxUint8
)

func checkWireLimits(r ships.Rules) error {
	if r.Width > maxBoardSide || r.Height > maxBoardSide {
		return fmt.Errorf("board %dx%d exceeds %d cells per side", r.Width, r.Height, maxBoardSide)
	}
	if len(r.Fleet) > maxFleet {
		return fmt.Errorf("fleet of %d ships exceeds %d", len(r.Fleet), maxFleet)
	}
	for _, s := range r.Fleet {
		if s.W > maxShipSide || s.H > maxShipSide {
			return fmt.Errorf("ship %s exceeds %d cells per side", s, maxShipSide)
		}
	}
	return nil
}

// Modes holds the validated rules of every playable mode.
type Modes map[GameMode]ships.Rules

// BuildModes derives the rules of each mode. Classic, Strict and Open only
// differ in spacing, Custom takes board and fleet from the config.
func BuildModes(cfg config.Config) (Modes, error) {
	classic := ships.DefaultRules()
	classic.StartingPlayer = cfg.STARTING_PLAYER

	strict := classic
	strict.Spacing = ships.SpacingNoCorners

	open := classic
	open.Spacing = ships.SpacingNone

	spacing, err := ships.ParseSpacing(cfg.SPACING)
	if err != nil {
		return nil, fmt.Errorf("SPACING: %w", err)
	}
	fleet, err := ships.ParseFleet(cfg.FLEET)
	if err != nil {
		return nil, fmt.Errorf("FLEET: %w", err)
	}
	custom := ships.Rules{
		Width:          cfg.BOARD_WIDTH,
		Height:         cfg.BOARD_HEIGHT,
		Spacing:        spacing,
		Fleet:          fleet,
		StartingPlayer: cfg.STARTING_PLAYER,
	}

	modes := Modes{
		ModeClassic: classic,
		ModeStrict:  strict,
		ModeOpen:    open,
		ModeCustom:  custom,
	}
	for mode, rules := range modes {
		if err := rules.Validate(); err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
		if err := checkWireLimits(rules); err != nil {
			return nil, fmt.Errorf("mode %s: %w", mode, err)
		}
	}
	return modes, nil
}

// Rules returns a copy of the rules for mode.
func (m Modes) Rules(mode GameMode) (ships.Rules, error) {
	r, ok := m[mode]
	if !ok {
		return ships.Rules{}, fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
	r.Fleet = append([]ships.Size(nil), r.Fleet...)
	return r, nil
}

func (m Modes) List() []GameMode {
	out := make([]GameMode, 0, len(m))
	for mode := range m {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
