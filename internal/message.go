package internal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zefir/statki-go-backend/internal/auth"
	bh "github.com/zefir/statki-go-backend/internal/binaryHelpers"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

type MsgType uint16

var ServerCmds = struct {
	Ping                MsgType
	ClientAuthenticated MsgType
	GameFound           MsgType
	GameStarted         MsgType
	GameDeclined        MsgType
	GameSearchTimeout   MsgType
	AuthFailed          MsgType
	PlacementResult     MsgType
	AttackResult        MsgType
	TurnChanged         MsgType
	GameOver            MsgType
	Rejected            MsgType
	GameState           MsgType
	PhaseChanged        MsgType
	OpponentStatus      MsgType
	SaveFailed          MsgType
}{
	Ping:                1,
	ClientAuthenticated: 3,
	GameFound:           4,
	GameStarted:         5,
	GameDeclined:        6,
	GameSearchTimeout:   7,
	AuthFailed:          8,
	PlacementResult:     15,
	AttackResult:        16,
	TurnChanged:         17,
	GameOver:            18,
	Rejected:            19,
	GameState:           20,
	PhaseChanged:        21,
	OpponentStatus:      22,
	SaveFailed:          23,
}

var ClientCmds = struct {
	Pong             MsgType
	Auth             MsgType
	SearchingForGame MsgType
	AcceptedGame     MsgType
	DeclinedGame     MsgType
	SignUp           MsgType
	TokenAuth        MsgType
	PlaceShip        MsgType
	Attack           MsgType
	RequestState     MsgType
	Logout           MsgType
	CloseSocket      MsgType
}{
	Pong:             1,
	Auth:             2,
	SearchingForGame: 3,
	AcceptedGame:     4,
	DeclinedGame:     5,
	SignUp:           6,
	TokenAuth:        7,
	PlaceShip:        10,
	Attack:           11,
	RequestState:     12,
	Logout:           13,
	CloseSocket:      61500,
}

// Payload layouts shared by the server and bot clients.
var (
	CredentialsLayout = bh.Layout{bh.Str, bh.Str} // username, password
	TokenLayout       = bh.Layout{bh.Str}
	ModeLayout        = bh.Layout{bh.Uint16}
	MatchLayout       = bh.Layout{bh.Uint32}
	// template, length, width, height, orientation, x, y, name
	PlaceShipLayout = bh.Layout{bh.Str, bh.Uint8, bh.Uint8, bh.Uint8, bh.Uint8, bh.Uint8, bh.Uint8, bh.Str}
	CellLayout      = bh.Layout{bh.Uint8, bh.Uint8}

	AuthenticatedLayout   = bh.Layout{bh.Str, bh.Str}   // token, username
	GameFoundLayout       = bh.Layout{bh.Uint32, bh.Str} // match id, opponent
	ReasonLayout          = bh.Layout{bh.Str}
	PlacementResultLayout = bh.Layout{bh.Bool, bh.Str, bh.Str, bh.Uint8} // ok, reason, name, remaining
	// x, y, outcome, attacker, sunk ship name
	AttackResultLayout   = bh.Layout{bh.Uint8, bh.Uint8, bh.Uint8, bh.Uint8, bh.Str}
	SeatLayout           = bh.Layout{bh.Uint8}
	GameOverLayout       = bh.Layout{bh.Uint8, bh.Str, bh.Uint16} // winner, winner name, accuracy in permille
	RejectedLayout       = bh.Layout{bh.Uint16, bh.Uint8}
	OpponentStatusLayout = bh.Layout{bh.Bool}
	CodeLayout           = bh.Layout{bh.Uint8}
)

// pack is for server built payloads whose field types are fixed here.
func pack(l bh.Layout, values ...any) []byte {
	data, err := l.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("pack server message: %v", err))
	}
	return data
}

func unpack(l bh.Layout, payload []byte) ([]any, error) {
	v, err := l.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}

func decodeCredentials(payload []byte) (username, password string, err error) {
	v, err := unpack(CredentialsLayout, payload)
	if err != nil {
		return "", "", err
	}
	return v[0].(string), v[1].(string), nil
}

func decodeToken(payload []byte) (string, error) {
	v, err := unpack(TokenLayout, payload)
	if err != nil {
		return "", err
	}
	return v[0].(string), nil
}

func decodeMode(payload []byte) (GameMode, error) {
	v, err := unpack(ModeLayout, payload)
	if err != nil {
		return 0, err
	}
	return GameMode(v[0].(uint16)), nil
}

func decodeMatchID(payload []byte) (uint32, error) {
	v, err := unpack(MatchLayout, payload)
	if err != nil {
		return 0, err
	}
	return v[0].(uint32), nil
}

// decodePlacement maps a PlaceShip payload onto a placement. An empty
// template and zero length mean an explicit width x height.
func decodePlacement(payload []byte) (ships.Placement, error) {
	v, err := unpack(PlaceShipLayout, payload)
	if err != nil {
		return ships.Placement{}, err
	}
	p := ships.Placement{
		Length:      int(v[1].(uint8)),
		Size:        ships.Size{W: int(v[2].(uint8)), H: int(v[3].(uint8))},
		Orientation: ships.Orientation(v[4].(uint8)),
		Position:    ships.Cell{X: int(v[5].(uint8)), Y: int(v[6].(uint8))},
		Name:        v[7].(string),
	}
	if name := v[0].(string); name != "" {
		tpl, err := ships.ParseTemplate(name)
		if err != nil {
			return ships.Placement{}, &ships.PlacementError{Position: p.Position, Reason: err}
		}
		p.Template = tpl
	}
	return p, nil
}

func decodeCell(payload []byte) (ships.Cell, error) {
	v, err := unpack(CellLayout, payload)
	if err != nil {
		return ships.Cell{}, err
	}
	return ships.Cell{X: int(v[0].(uint8)), Y: int(v[1].(uint8))}, nil
}

func attackResultMsg(res ships.AttackResult) []byte {
	return pack(AttackResultLayout,
		uint8(res.Cell.X), uint8(res.Cell.Y), uint8(res.Outcome), uint8(res.Attacker), res.Sunk)
}

func placementResultMsg(ok bool, reason, name string, remaining int) []byte {
	return pack(PlacementResultLayout, ok, reason, name, uint8(remaining))
}

func seatMsg(seat int) []byte { return pack(SeatLayout, uint8(seat)) }

func rejectedMsg(t MsgType, code RejectCode) []byte {
	return pack(RejectedLayout, uint16(t), uint8(code))
}

// GameStartedMsg is sent as JSON to each player when a game starts or resumes.
type GameStartedMsg struct {
	GameID   string      `json:"game_id"`
	GameMode GameMode    `json:"game_mode"`
	Players  [2]string   `json:"players"`
	Seat     int         `json:"seat"`
	Resumed  bool        `json:"resumed"`
	Rules    ships.Rules `json:"rules"`
}

// GameStateMsg is one player's full view of a game.
type GameStateMsg struct {
	GameID    string           `json:"game_id"`
	GameMode  GameMode         `json:"game_mode"`
	Players   [2]string        `json:"players"`
	Suspended bool             `json:"suspended"`
	Winner    *int             `json:"winner,omitempty"`
	View      ships.PlayerView `json:"view"`
}

func encodeJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode %T: %v", v, err))
	}
	return data
}

type RejectCode uint8

const (
	CodeInternal RejectCode = iota
	CodeBadPayload
	CodeUnknownMessage
	CodeNotAuthenticated
	CodeAlreadyAuthenticated
	CodeRateLimited
	CodeUnknownMode
	CodeAlreadyPlaying
	CodeQueueFull
	CodeNotInGame
	CodeUnknownPlayer
	CodeWrongPhase
	CodeOutOfTurn
	CodeOutOfBounds
	CodeGameFinished
	CodeInvalidPlacement
	CodePersistence
	CodeBadCredentials
	CodeUserExists
	CodeInvalidAccount
)

var rejectCodes = []struct {
	err  error
	code RejectCode
}{
	{ErrBadPayload, CodeBadPayload},
	{ErrNotAuthenticated, CodeNotAuthenticated},
	{ErrAlreadyAuthorized, CodeAlreadyAuthenticated},
	{ErrRateLimited, CodeRateLimited},
	{ErrUnknownMode, CodeUnknownMode},
	{ErrAlreadyPlaying, CodeAlreadyPlaying},
	{ErrSamePlayer, CodeAlreadyPlaying},
	{ErrQueueFull, CodeQueueFull},
	{ErrUnknownSession, CodeNotInGame},
	{ErrUnknownPlayer, CodeUnknownPlayer},
	{ships.ErrUnknownPlayer, CodeUnknownPlayer},
	{ErrWrongPhase, CodeWrongPhase},
	{ships.ErrOutOfTurn, CodeOutOfTurn},
	{ErrGameFinished, CodeGameFinished},
	{ships.ErrInvalidPlacement, CodeInvalidPlacement},
	{ships.ErrOutOfBounds, CodeOutOfBounds},
	{auth.ErrBadCredentials, CodeBadCredentials},
	{auth.ErrBadToken, CodeBadCredentials},
	{auth.ErrUserExists, CodeUserExists},
	{auth.ErrInvalidUsername, CodeInvalidAccount},
	{auth.ErrWeakPassword, CodeInvalidAccount},
}

// rejectCode maps an error onto its wire code. Placement errors are
// checked before out of bounds since they wrap it.
func rejectCode(err error) RejectCode {
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return CodePersistence
	}
	for _, rc := range rejectCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return CodeInternal
}
