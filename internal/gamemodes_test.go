package internal

import (
	"errors"
	"strings"
	"testing"

	"github.com/zefir/statki-go-backend/config"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

func TestBuildModes(t *testing.T) {
	modes, err := BuildModes(config.Config{
		BOARD_WIDTH:  6,
		BOARD_HEIGHT: 4,
		SPACING:      "nocorners",
		FLEET:        "3,2x2",
	})
	if err != nil {
		t.Fatalf("BuildModes: %v", err)
	}
	if got := modes.List(); len(got) != 4 || got[0] != ModeClassic || got[3] != ModeCustom {
		t.Fatalf("List = %v", got)
	}

	spacing := map[GameMode]ships.Spacing{
		ModeClassic: ships.SpacingCornersAllowed,
		ModeStrict:  ships.SpacingNoCorners,
		ModeOpen:    ships.SpacingNone,
		ModeCustom:  ships.SpacingNoCorners,
	}
	for mode, want := range spacing {
		r, err := modes.Rules(mode)
		if err != nil {
			t.Fatalf("Rules(%s): %v", mode, err)
		}
		if r.Spacing != want {
			t.Errorf("%s spacing = %s, want %s", mode, r.Spacing, want)
		}
	}

	custom, _ := modes.Rules(ModeCustom)
	if custom.Width != 6 || custom.Height != 4 || len(custom.Fleet) != 2 || custom.Fleet[1] != (ships.Size{W: 2, H: 2}) {
		t.Fatalf("custom rules = %+v", custom)
	}
	custom.Fleet[0] = ships.Size{W: 9, H: 9}
	again, _ := modes.Rules(ModeCustom)
	if again.Fleet[0] != (ships.Size{W: 1, H: 3}) {
		t.Fatalf("Rules handed out the stored fleet")
	}

	if _, err := modes.Rules(GameMode(42)); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("unknown mode err = %v", err)
	}
}

func TestBuildModesRejectsBadConfig(t *testing.T) {
	base := config.Config{BOARD_WIDTH: 10, BOARD_HEIGHT: 10, SPACING: "cornersok", FLEET: "5,4"}
	tests := []struct {
		name   string
		mutate func(*config.Config)
		prefix string
	}{
		{"spacing", func(c *config.Config) { c.SPACING = "sometimes" }, "SPACING"},
		{"fleet", func(c *config.Config) { c.FLEET = "3,big" }, "FLEET"},
		{"fleet too long", func(c *config.Config) { c.FLEET = "11" }, "mode Custom"},
		{"starting player", func(c *config.Config) { c.STARTING_PLAYER = 2 }, "mode"},
		{"board wider than a byte", func(c *config.Config) { c.BOARD_WIDTH = 257 }, "mode Custom"},
		{"board taller than a byte", func(c *config.Config) { c.BOARD_HEIGHT = 300 }, "mode Custom"},
		{"ship longer than a byte", func(c *config.Config) { c.BOARD_WIDTH, c.FLEET = 256, "256" }, "mode Custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := BuildModes(cfg)
			if err == nil || !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Fatalf("err = %v, want prefix %q", err, tt.prefix)
			}
		})
	}
}

func TestBuildModesLargestBoard(t *testing.T) {
	modes, err := BuildModes(config.Config{BOARD_WIDTH: 256, BOARD_HEIGHT: 256, SPACING: "none", FLEET: "255"})
	if err != nil {
		t.Fatalf("BuildModes: %v", err)
	}
	custom, _ := modes.Rules(ModeCustom)
	b, err := ships.NewBoard(custom)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	ship, err := b.PlaceShip(0, ships.Placement{Length: 255, Orientation: ships.Horizontal, Position: ships.Cell{X: 1, Y: 255}})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	// the far corner still fits the wire
	payload := attackResultMsg(ships.AttackResult{Cell: ships.Cell{X: 255, Y: ship.Position.Y}})
	v, err := AttackResultLayout.Unpack(payload)
	if err != nil || v[0] != uint8(255) || v[1] != uint8(255) {
		t.Fatalf("far corner = %v, %v", v, err)
	}
}
