package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zefir/statki-go-backend/internal"
	bh "github.com/zefir/statki-go-backend/internal/binaryHelpers"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
	"github.com/zefir/statki-go-backend/internal/ws"
	"github.com/zefir/statki-go-backend/logger"
)

func main() {
	var (
		serverAddr = flag.String("addr", "localhost:4411", "WebSocket server address")
		numClients = flag.Int("clients", 10, "Number of bots to spawn, rounded down to an even number")
		mode       = flag.Uint("mode", uint(internal.ModeClassic), "Game mode to queue for")
		password   = flag.String("password", "bot-password", "Password used for every bot account")
		runFor     = flag.Duration("duration", 2*time.Minute, "Give up after this long")
		pretty     = flag.Bool("pretty", true, "Human readable logs")
	)
	flag.Parse()
	if err := logger.Init("info", *pretty); err != nil {
		logger.Log.Fatal().Err(err).Msg("logger")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *runFor)
	defer cancel()

	runID := rand.Int31()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *numClients/2*2; i++ {
		b := &bot{
			name:     fmt.Sprintf("bot_%d_%d", runID, i),
			password: *password,
			mode:     uint16(*mode),
			rnd:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			log:      logger.Component("bot").With().Int("bot", i).Logger(),
		}
		g.Go(func() error { return b.run(ctx, "ws://"+*serverAddr) })
	}
	if err := g.Wait(); err != nil {
		logger.Log.Fatal().Err(err).Msg("tester failed")
	}
	logger.Log.Info().Msg("Tester finished.")
}

type bot struct {
	name     string
	password string
	mode     uint16
	rnd      *rand.Rand
	log      zerolog.Logger

	conn   net.Conn
	seat   int
	rules  ships.Rules
	shots  []ships.Cell
	signUp bool
}

var errGameOver = errors.New("game over")

func (b *bot) run(ctx context.Context, url string) error {
	conn, err := ws.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", b.name, err)
	}
	defer conn.Close()
	b.conn = conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	b.signUp = true
	if err := b.send(internal.ClientCmds.SignUp, internal.CredentialsLayout, b.name, b.password); err != nil {
		return err
	}

	r := ws.NewClientReader(conn)
	for {
		frame, err := r.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%s: read: %w", b.name, err)
		}
		err = b.handle(internal.MsgType(frame.Type), frame.Payload)
		frame.Release()
		if errors.Is(err, errGameOver) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
}

func (b *bot) send(t internal.MsgType, l bh.Layout, values ...any) error {
	payload, err := l.Pack(values...)
	if err != nil {
		return err
	}
	return ws.WriteClient(b.conn, ws.Encode(uint16(t), payload))
}

func (b *bot) handle(t internal.MsgType, payload []byte) error {
	cmds := internal.ServerCmds
	switch t {
	case cmds.Ping:
		return b.send(internal.ClientCmds.Pong, nil)
	case cmds.AuthFailed:
		if !b.signUp {
			return fmt.Errorf("authentication failed")
		}
		// account left over from an earlier run
		b.signUp = false
		return b.send(internal.ClientCmds.Auth, internal.CredentialsLayout, b.name, b.password)
	case cmds.ClientAuthenticated:
		b.log.Info().Msg("authenticated, searching")
		return b.send(internal.ClientCmds.SearchingForGame, internal.ModeLayout, b.mode)
	case cmds.GameFound:
		v, err := internal.GameFoundLayout.Unpack(payload)
		if err != nil {
			return err
		}
		b.log.Info().Str("opponent", v[1].(string)).Msg("game found")
		return b.send(internal.ClientCmds.AcceptedGame, internal.MatchLayout, v[0].(uint32))
	case cmds.GameStarted:
		var msg internal.GameStartedMsg
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		b.seat, b.rules = msg.Seat, msg.Rules
		b.planShots()
	case cmds.GameState:
		var st internal.GameStateMsg
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		return b.placeFleet(st.View)
	case cmds.TurnChanged:
		v, err := internal.SeatLayout.Unpack(payload)
		if err != nil {
			return err
		}
		if int(v[0].(uint8)) == b.seat {
			return b.fire()
		}
	case cmds.AttackResult:
		v, err := internal.AttackResultLayout.Unpack(payload)
		if err != nil {
			return err
		}
		if int(v[3].(uint8)) == b.seat && ships.Outcome(v[2].(uint8)) == ships.Hit {
			return b.fire()
		}
	case cmds.GameOver:
		v, err := internal.GameOverLayout.Unpack(payload)
		if err != nil {
			return err
		}
		b.log.Info().Str("winner", v[1].(string)).Uint16("accuracy_permille", v[2].(uint16)).Msg("game over")
		return errGameOver
	case cmds.PlacementResult:
		v, err := internal.PlacementResultLayout.Unpack(payload)
		if err != nil {
			return err
		}
		if !v[0].(bool) {
			return fmt.Errorf("placement rejected: %s", v[1].(string))
		}
	case cmds.Rejected:
		v, err := internal.RejectedLayout.Unpack(payload)
		if err != nil {
			return err
		}
		b.log.Warn().Uint16("msg", v[0].(uint16)).Uint8("code", v[1].(uint8)).Msg("rejected")
	}
	return nil
}

// planShots shuffles every cell of the board into a firing order.
func (b *bot) planShots() {
	b.shots = b.shots[:0]
	for y := 0; y < b.rules.Height; y++ {
		for x := 0; x < b.rules.Width; x++ {
			b.shots = append(b.shots, ships.Cell{X: x, Y: y})
		}
	}
	b.rnd.Shuffle(len(b.shots), func(i, j int) { b.shots[i], b.shots[j] = b.shots[j], b.shots[i] })
}

func (b *bot) fire() error {
	if len(b.shots) == 0 {
		return fmt.Errorf("out of cells to fire at")
	}
	c := b.shots[0]
	b.shots = b.shots[1:]
	return b.send(internal.ClientCmds.Attack, internal.CellLayout, uint8(c.X), uint8(c.Y))
}

// placeFleet replays the ships already placed on a scratch board and then
// finds a legal spot for every ship still unplaced.
func (b *bot) placeFleet(view ships.PlayerView) error {
	if view.Phase != ships.Setup.String() || len(view.Unused) == 0 {
		return nil
	}
	rules := b.rules
	rules.Fleet = append([]ships.Size(nil), view.Unused...)
	for _, s := range view.Fleet {
		rules.Fleet = append(rules.Fleet, s.Size)
	}
	scratch, err := ships.NewBoard(rules)
	if err != nil {
		return err
	}
	for _, s := range view.Fleet {
		if _, err := scratch.PlaceShip(view.Seat, ships.Placement{Size: s.Size, Position: s.Position}); err != nil {
			return err
		}
	}

	for _, size := range view.Unused {
		pos, sz, ok := b.findSpot(scratch, view.Seat, size)
		if !ok {
			return fmt.Errorf("no room for %s", size)
		}
		if _, err := scratch.PlaceShip(view.Seat, ships.Placement{Size: sz, Position: pos}); err != nil {
			return err
		}
		err := b.send(internal.ClientCmds.PlaceShip, internal.PlaceShipLayout,
			"", uint8(0), uint8(sz.W), uint8(sz.H), uint8(ships.NoOrientation), uint8(pos.X), uint8(pos.Y), "")
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *bot) findSpot(board *ships.Board, seat int, size ships.Size) (ships.Cell, ships.Size, bool) {
	for attempt := 0; attempt < 200; attempt++ {
		sz := size
		if b.rnd.Intn(2) == 0 {
			sz = size.Rotate()
		}
		pos := ships.Cell{X: b.rnd.Intn(b.rules.Width), Y: b.rnd.Intn(b.rules.Height)}
		if board.IsValidPlacement(seat, sz, pos) == nil {
			return pos, sz, true
		}
	}
	for y := 0; y < b.rules.Height; y++ {
		for x := 0; x < b.rules.Width; x++ {
			for _, sz := range []ships.Size{size, size.Rotate()} {
				pos := ships.Cell{X: x, Y: y}
				if board.IsValidPlacement(seat, sz, pos) == nil {
					return pos, sz, true
				}
			}
		}
	}
	return ships.Cell{}, ships.Size{}, false
}
