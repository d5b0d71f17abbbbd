package internal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zefir/statki-go-backend/internal/auth"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

func TestDecodePlacement(t *testing.T) {
	payload := pack(PlaceShipLayout, "Destroyer", uint8(0), uint8(0), uint8(0), uint8('v'), uint8(4), uint8(2), "")
	p, err := decodePlacement(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := ships.Placement{Template: ships.Destroyer, Orientation: ships.Vertical, Position: ships.Cell{X: 4, Y: 2}}
	if p.Template != want.Template || p.Orientation != want.Orientation || p.Position != want.Position {
		t.Fatalf("placement = %+v, want %+v", p, want)
	}

	payload = pack(PlaceShipLayout, "", uint8(0), uint8(2), uint8(3), uint8(0), uint8(1), uint8(1), "fort")
	p, err = decodePlacement(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Size != (ships.Size{W: 2, H: 3}) || p.Name != "fort" || p.Template != ships.NoTemplate {
		t.Fatalf("explicit placement = %+v", p)
	}

	payload = pack(PlaceShipLayout, "dreadnought", uint8(0), uint8(0), uint8(0), uint8('h'), uint8(0), uint8(0), "")
	_, err = decodePlacement(payload)
	if !errors.Is(err, ships.ErrInvalidPlacement) || !errors.Is(err, ships.ErrUnknownTemplate) {
		t.Fatalf("unknown template err = %v", err)
	}
}

func TestDecodeBadPayload(t *testing.T) {
	decoders := map[string]func([]byte) error{
		"credentials": func(b []byte) error { _, _, err := decodeCredentials(b); return err },
		"mode":        func(b []byte) error { _, err := decodeMode(b); return err },
		"match":       func(b []byte) error { _, err := decodeMatchID(b); return err },
		"placement":   func(b []byte) error { _, err := decodePlacement(b); return err },
		"cell":        func(b []byte) error { _, err := decodeCell(b); return err },
	}
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			if err := decode([]byte{0xff}); !errors.Is(err, ErrBadPayload) {
				t.Fatalf("err = %v, want ErrBadPayload", err)
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	user, pass, err := decodeCredentials(pack(CredentialsLayout, "alice", "secret"))
	if err != nil || user != "alice" || pass != "secret" {
		t.Fatalf("credentials = %q %q %v", user, pass, err)
	}
	mode, err := decodeMode(pack(ModeLayout, uint16(ModeStrict)))
	if err != nil || mode != ModeStrict {
		t.Fatalf("mode = %v %v", mode, err)
	}
	cell, err := decodeCell(pack(CellLayout, uint8(9), uint8(3)))
	if err != nil || cell != (ships.Cell{X: 9, Y: 3}) {
		t.Fatalf("cell = %v %v", cell, err)
	}
}

func TestRejectCode(t *testing.T) {
	tests := []struct {
		err  error
		want RejectCode
	}{
		{fmt.Errorf("%w: short", ErrBadPayload), CodeBadPayload},
		{ErrNotAuthenticated, CodeNotAuthenticated},
		{ErrSamePlayer, CodeAlreadyPlaying},
		{fmt.Errorf("%w: 9", ErrUnknownMode), CodeUnknownMode},
		{ships.ErrOutOfTurn, CodeOutOfTurn},
		{fmt.Errorf("attack: %w", ships.ErrOutOfBounds), CodeOutOfBounds},
		{&ships.PlacementError{Reason: ships.ErrOutOfBounds}, CodeInvalidPlacement},
		{&ships.PlacementError{Reason: ships.ErrTooClose}, CodeInvalidPlacement},
		{&PersistenceError{SessionID: "g", Op: "save", Err: errors.New("io")}, CodePersistence},
		{auth.ErrBadToken, CodeBadCredentials},
		{auth.ErrUserExists, CodeUserExists},
		{auth.ErrWeakPassword, CodeInvalidAccount},
		{errors.New("something else"), CodeInternal},
	}
	for _, tt := range tests {
		if got := rejectCode(tt.err); got != tt.want {
			t.Errorf("rejectCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
