package internal

import (
	"sync"
	"time"

	"github.com/dariubs/percent"
	"github.com/rs/zerolog"

	"github.com/zefir/statki-go-backend/internal/db"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
	"github.com/zefir/statki-go-backend/logger"
)

// Peer is whatever receives a player's notifications. Send must not block.
type Peer interface {
	Name() string
	Send(msgType MsgType, payload []byte)
}

// GameSession serialises every move of one match. Notifications are queued
// to peers while the lock is held so both players see moves in lock order.
type GameSession struct {
	ID      string
	Mode    GameMode
	players [ships.Players]string

	mu        sync.Mutex
	peers     [ships.Players]Peer
	board     *ships.Board
	suspended bool
	reported  bool
	version   int64
	joined    [ships.Players]bool
	// restored is set for sessions loaded from the store.
	restored bool

	turnTimeout time.Duration
	turnTimer   *time.Timer
	turnSeq     uint64
	// onTurnExpired runs outside the lock after a timed out turn was passed.
	onTurnExpired func(*GameSession)

	log zerolog.Logger
}

type PlacementOutcome struct {
	Ship      string
	Remaining int
	// Started is set when this placement finished setup for both players.
	Started bool
}

func newGameSession(id string, mode GameMode, players [ships.Players]string, board *ships.Board) *GameSession {
	return &GameSession{
		ID:      id,
		Mode:    mode,
		players: players,
		board:   board,
		log:     logger.Component("session").With().Str("game", id).Logger(),
	}
}

func (s *GameSession) seat(user string) (int, error) {
	for i, p := range s.players {
		if p == user {
			return i, nil
		}
	}
	return 0, ErrUnknownPlayer
}

func (s *GameSession) Seat(user string) (int, error) { return s.seat(user) }

func (s *GameSession) Players() [ships.Players]string { return s.players }

func (s *GameSession) broadcast(t MsgType, payload []byte) {
	for _, p := range s.peers {
		if p != nil {
			p.Send(t, payload)
		}
	}
}

func (s *GameSession) sendTo(seat int, t MsgType, payload []byte) {
	if p := s.peers[seat]; p != nil {
		p.Send(t, payload)
	}
}

// checkMutable returns the seat of user if it may act in phase want.
func (s *GameSession) checkMutable(user string, want ships.Phase) (int, error) {
	seat, err := s.seat(user)
	if err != nil {
		return 0, err
	}
	phase := s.board.Phase()
	if phase == ships.Finished {
		return 0, ErrGameFinished
	}
	if phase != want {
		return 0, ErrWrongPhase
	}
	return seat, nil
}

func (s *GameSession) PlaceShip(user string, p ships.Placement) (PlacementOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.checkMutable(user, ships.Setup)
	if err != nil {
		return PlacementOutcome{}, err
	}
	ship, err := s.board.PlaceShip(seat, p)
	if err != nil {
		return PlacementOutcome{}, err
	}
	s.version++

	out := PlacementOutcome{Ship: ship.Name, Remaining: len(s.board.Remaining(seat))}
	s.sendTo(seat, ServerCmds.PlacementResult, placementResultMsg(true, "", ship.Name, out.Remaining))
	if s.board.Phase() == ships.Active {
		out.Started = true
		s.log.Info().Int("starting", s.board.ActivePlayer()).Msg("setup done")
		s.broadcast(ServerCmds.PhaseChanged, seatMsg(int(ships.Active)))
		s.broadcast(ServerCmds.TurnChanged, seatMsg(s.board.ActivePlayer()))
		s.restartTurnTimer()
	}
	return out, nil
}

func (s *GameSession) Attack(user string, cell ships.Cell) (ships.AttackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.checkMutable(user, ships.Active)
	if err != nil {
		return ships.AttackResult{}, err
	}
	res, err := s.board.Attack(seat, cell)
	if err != nil {
		return ships.AttackResult{}, err
	}
	s.version++

	s.broadcast(ServerCmds.AttackResult, attackResultMsg(res))
	if res.Defeated {
		s.finish(seat)
		return res, nil
	}
	if res.Active != seat {
		s.broadcast(ServerCmds.TurnChanged, seatMsg(res.Active))
	}
	s.restartTurnTimer()
	return res, nil
}

// Pass gives up the current turn.
func (s *GameSession) Pass(user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.checkMutable(user, ships.Active)
	if err != nil {
		return err
	}
	if err := s.board.Pass(seat); err != nil {
		return err
	}
	s.passed()
	return nil
}

func (s *GameSession) passed() {
	s.version++
	s.broadcast(ServerCmds.TurnChanged, seatMsg(s.board.ActivePlayer()))
	s.restartTurnTimer()
}

// finish freezes the session and announces the winner once.
func (s *GameSession) finish(winner int) {
	s.stopTurnTimer()
	s.suspended = false
	if s.reported {
		return
	}
	s.reported = true
	s.log.Info().Str("winner", s.players[winner]).Msg("game over")
	s.broadcast(ServerCmds.GameOver, pack(GameOverLayout, uint8(winner), s.players[winner], s.accuracy(winner)))
}

// accuracy of seat in permille: distinct hits over all shots fired.
func (s *GameSession) accuracy(seat int) uint16 {
	hits := 0
	for _, ship := range s.board.Ships(ships.Opponent(seat)) {
		hits += len(ship.DestroyedParts())
	}
	shots := hits + len(s.board.Misses(seat))
	if shots == 0 {
		return 0
	}
	return uint16(percent.PercentOf(hits, shots) * 10)
}

// Attach binds peer to its seat and sends it the game start notice and its
// view of the board. It returns the seat and whether the game left
// suspension because of it.
func (s *GameSession) Attach(peer Peer) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.seat(peer.Name())
	if err != nil {
		return 0, false, err
	}
	started := s.startedLocked(seat, s.joined[seat] || s.restored)
	s.peers[seat] = peer
	s.joined[seat] = true

	resumed := false
	if s.suspended && s.peers[0] != nil && s.peers[1] != nil {
		s.suspended = false
		s.version++
		resumed = true
		s.log.Info().Msg("resumed")
		s.restartTurnTimer()
	}
	peer.Send(ServerCmds.GameStarted, encodeJSON(started))
	peer.Send(ServerCmds.GameState, encodeJSON(s.stateLocked(seat)))
	s.sendTo(ships.Opponent(seat), ServerCmds.OpponentStatus, pack(OpponentStatusLayout, true))
	return seat, resumed, nil
}

// Detach unbinds peer. An unfinished game becomes suspended with its phase
// unchanged; it reports whether that happened. A peer that no longer holds
// its seat, because the player reconnected meanwhile, changes nothing.
func (s *GameSession) Detach(peer Peer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.seat(peer.Name())
	if err != nil {
		return false, err
	}
	if s.peers[seat] != peer {
		return false, nil
	}
	s.peers[seat] = nil
	s.sendTo(ships.Opponent(seat), ServerCmds.OpponentStatus, pack(OpponentStatusLayout, false))
	if s.board.Phase() == ships.Finished || s.suspended {
		return false, nil
	}
	s.suspended = true
	s.version++
	s.stopTurnTimer()
	s.log.Info().Str("player", peer.Name()).Msg("suspended")
	return true, nil
}

// Snapshot captures what the store needs to restore the game.
func (s *GameSession) Snapshot() db.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return db.GameRecord{
		ID:       s.ID,
		Player0:  s.players[0],
		Player1:  s.players[1],
		Mode:     uint16(s.Mode),
		Status:   s.statusLocked(),
		Snapshot: s.board.Snapshot(),
		Version:  s.version,
	}
}

func (s *GameSession) statusLocked() db.GameStatus {
	if w, ok := s.board.Winner(); ok {
		return db.WonBy(w)
	}
	if s.suspended {
		return db.StatusSuspended
	}
	return db.StatusPlaying
}

// State is user's view of the game.
func (s *GameSession) State(user string) (GameStateMsg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.seat(user)
	if err != nil {
		return GameStateMsg{}, err
	}
	return s.stateLocked(seat), nil
}

func (s *GameSession) stateLocked(seat int) GameStateMsg {
	st := GameStateMsg{
		GameID:    s.ID,
		GameMode:  s.Mode,
		Players:   s.players,
		Suspended: s.suspended,
		View:      s.board.View(seat),
	}
	if w, ok := s.board.Winner(); ok {
		st.Winner = &w
	}
	return st
}

func (s *GameSession) startedLocked(seat int, resumed bool) GameStartedMsg {
	return GameStartedMsg{
		GameID:   s.ID,
		GameMode: s.Mode,
		Players:  s.players,
		Seat:     seat,
		Resumed:  resumed,
		Rules:    s.board.Rules(),
	}
}

// Remaining is how many ships user still has to place.
func (s *GameSession) Remaining(user string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, err := s.seat(user)
	if err != nil {
		return 0, err
	}
	return len(s.board.Remaining(seat)), nil
}

func (s *GameSession) Winner() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Winner()
}

func (s *GameSession) Phase() ships.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Phase()
}

func (s *GameSession) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended
}

func (s *GameSession) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Close stops the turn clock.
func (s *GameSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTurnTimer()
}

func (s *GameSession) stopTurnTimer() {
	s.turnSeq++
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

// restartTurnTimer starts a fresh clock for the active player. A timer that
// fires after being replaced sees a newer turnSeq and does nothing.
func (s *GameSession) restartTurnTimer() {
	s.stopTurnTimer()
	if s.turnTimeout <= 0 || s.suspended || s.board.Phase() != ships.Active {
		return
	}
	seq := s.turnSeq
	s.turnTimer = time.AfterFunc(s.turnTimeout, func() { s.expireTurn(seq) })
}

func (s *GameSession) expireTurn(seq uint64) {
	s.mu.Lock()
	if seq != s.turnSeq || s.suspended || s.board.Phase() != ships.Active {
		s.mu.Unlock()
		return
	}
	active := s.board.ActivePlayer()
	if err := s.board.Pass(active); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("pass on turn timeout")
		return
	}
	s.log.Debug().Str("player", s.players[active]).Msg("turn timed out")
	s.passed()
	hook := s.onTurnExpired
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
}
