package internal

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zefir/statki-go-backend/internal/ws"
	"github.com/zefir/statki-go-backend/logger"
)

// AccountStore is what the server needs from the account service.
type AccountStore interface {
	Verify(ctx context.Context, username, password string) (string, error)
	VerifyToken(ctx context.Context, token string) (string, error)
	SignUp(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, username string) error
	RecordGameStart(ctx context.Context, username string) error
	RecordWin(ctx context.Context, username string) error
}

type Options struct {
	Accounts AccountStore
	Keeper   *GameKeeper
	Modes    Modes

	QueueSize     int
	PingInterval  time.Duration
	AcceptTimeout time.Duration
	MsgRate       float64
	MsgBurst      int
}

// Server runs the websocket endpoint together with one matchmaker per mode.
type Server struct {
	opts        Options
	accounts    AccountStore
	keeper      *GameKeeper
	hub         *ClientHub
	matchmakers map[GameMode]*Matchmaker

	nextConn atomic.Uint64
	matchIDs atomic.Uint32

	log zerolog.Logger
}

func NewServer(opts Options) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	s := &Server{
		opts:        opts,
		accounts:    opts.Accounts,
		keeper:      opts.Keeper,
		hub:         NewClientHub(),
		matchmakers: make(map[GameMode]*Matchmaker),
		log:         logger.Component("ws"),
	}
	for _, mode := range opts.Modes.List() {
		s.matchmakers[mode] = NewMatchmaker(mode, MatchmakerOptions{
			QueueSize:     opts.QueueSize,
			AcceptTimeout: opts.AcceptTimeout,
			IDs:           &s.matchIDs,
			Eligible:      s.eligible,
			Start:         s.startGame,
		})
	}
	s.keeper.OnTurnExpired(s.turnExpired)
	return s
}

func (s *Server) Hub() *ClientHub { return s.hub }

func (s *Server) Keeper() *GameKeeper { return s.keeper }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", addr).Msg("WebSocket server started")
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// every connection and matchmaker to wind down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for _, m := range s.matchmakers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn().Err(err).Msg("accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := ws.Upgrade(conn); err != nil {
		s.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("WebSocket upgrade error")
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})

	limiter := rate.NewLimiter(rate.Limit(s.opts.MsgRate), s.opts.MsgBurst)
	cc := newClientConn(s.nextConn.Add(1), conn, s.opts.QueueSize, limiter, s.log)
	defer s.disconnect(cc)
	defer cc.Close()

	go cc.writeLoop(s.opts.PingInterval)
	stop := context.AfterFunc(ctx, cc.Shutdown)
	defer stop()

	r := ws.NewServerReader(conn)
	for {
		if s.opts.PingInterval > 0 {
			// a client answering pings never hits this
			conn.SetReadDeadline(time.Now().Add(3 * s.opts.PingInterval))
		}
		frame, err := r.Next()
		if errors.Is(err, ws.ErrFrameTooShort) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				cc.log.Debug().Err(err).Msg("frame read error")
			}
			return
		}
		s.handleMessage(ctx, cc, MsgType(frame.Type), frame.Payload)
		frame.Release()
	}
}

// disconnect runs after the read loop of cc ended.
func (s *Server) disconnect(cc *ClientConn) {
	if cc.user == "" {
		return
	}
	s.release(cc)
}

// release unbinds cc from its user. The last socket of a user takes them
// out of matchmaking and suspends their game.
func (s *Server) release(cc *ClientConn) {
	user, client := cc.user, cc.client
	cc.user, cc.client = "", nil
	if s.hub.Detach(user, cc) > 0 {
		return
	}
	// a new socket of the user may have logged in since
	if !s.hub.Online(user) {
		for _, m := range s.matchmakers {
			m.Remove(user)
		}
	}
	sess, ok := s.keeper.Lookup(user)
	if !ok || client == nil {
		return
	}
	suspended, err := sess.Detach(client)
	if err != nil || !suspended {
		return
	}
	ctx, cancel := persistContext()
	defer cancel()
	if err := s.keeper.Persist(ctx, sess); err != nil {
		s.notifySaveFailed(sess)
	}
}

func (s *Server) eligible(user string) bool {
	if !s.hub.Online(user) {
		return false
	}
	_, playing := s.keeper.Lookup(user)
	return !playing
}

const persistTimeout = 5 * time.Second

// persistContext outlives the request that caused the write.
func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

func (s *Server) notifySaveFailed(sess *GameSession) {
	for _, p := range sess.Players() {
		if c, ok := s.hub.Get(p); ok {
			c.Send(ServerCmds.SaveFailed, pack(CodeLayout, uint8(CodePersistence)))
		}
	}
}

func (s *Server) persist(sess *GameSession) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := s.keeper.Persist(ctx, sess); err != nil {
		s.notifySaveFailed(sess)
	}
}

func (s *Server) turnExpired(sess *GameSession) { s.persist(sess) }

// startGame is called by a matchmaker once both players accepted.
func (s *Server) startGame(ctx context.Context, mode GameMode, players [2]Peer) {
	sess, resumed, err := s.keeper.CreateOrResume(ctx, players[0].Name(), players[1].Name(), mode)
	if err != nil {
		s.log.Warn().Err(err).Str("p1", players[0].Name()).Str("p2", players[1].Name()).Msg("cannot start game")
		for _, p := range players {
			p.Send(ServerCmds.Rejected, rejectedMsg(ClientCmds.AcceptedGame, rejectCode(err)))
		}
		return
	}
	if !resumed {
		for _, p := range players {
			if err := s.accounts.RecordGameStart(ctx, p.Name()); err != nil {
				s.log.Error().Err(err).Str("player", p.Name()).Msg("record game start")
			}
		}
	}
	for _, p := range players {
		// the player may have reconnected on another socket meanwhile
		client, ok := s.hub.Get(p.Name())
		if !ok {
			continue
		}
		if _, _, err := sess.Attach(client); err != nil {
			s.log.Error().Err(err).Str("player", p.Name()).Msg("attach")
		}
	}
	s.persist(sess)
}

// finishGame books the win and retires the session.
func (s *Server) finishGame(ctx context.Context, sess *GameSession) {
	winner, ok := sess.Winner()
	if !ok {
		return
	}
	name := sess.Players()[winner]
	if err := s.accounts.RecordWin(ctx, name); err != nil {
		s.log.Error().Err(err).Str("player", name).Msg("record win")
	}
	pctx, cancel := persistContext()
	defer cancel()
	if err := s.keeper.Retire(pctx, sess); err != nil {
		s.notifySaveFailed(sess)
	}
}
