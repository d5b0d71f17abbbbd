package internal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zefir/statki-go-backend/internal/db"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
	"github.com/zefir/statki-go-backend/logger"
)

type pairKey [2]string

func pairOf(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// GameKeeper is the registry of live sessions and the only place that knows
// whether a player is in a game.
type GameKeeper struct {
	mu       sync.Mutex
	games    map[string]*GameSession
	byPair   map[pairKey]string
	byPlayer map[string]string

	store       db.GameStore
	modes       Modes
	turnTimeout time.Duration
	// onTurnExpired is handed to every session the keeper creates.
	onTurnExpired func(*GameSession)

	log zerolog.Logger
}

// NewGameKeeper builds a registry. A nil store keeps games in memory only.
func NewGameKeeper(store db.GameStore, modes Modes, turnTimeout time.Duration) *GameKeeper {
	return &GameKeeper{
		games:       make(map[string]*GameSession),
		byPair:      make(map[pairKey]string),
		byPlayer:    make(map[string]string),
		store:       store,
		modes:       modes,
		turnTimeout: turnTimeout,
		log:         logger.Component("gamekeeper"),
	}
}

// OnTurnExpired sets the hook run after a turn timed out.
func (g *GameKeeper) OnTurnExpired(fn func(*GameSession)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTurnExpired = fn
}

// conflictLocked reports a live session one of the players holds with someone
// else, or a finished one still waiting to be retired.
func (g *GameKeeper) conflictLocked(key pairKey) (*GameSession, error) {
	for _, p := range key {
		id, ok := g.byPlayer[p]
		if !ok {
			continue
		}
		s := g.games[id]
		if s.Phase() == ships.Finished {
			return s, nil
		}
		if g.byPair[key] != id {
			return nil, ErrAlreadyPlaying
		}
	}
	return nil, nil
}

// CreateOrResume returns the live session of the pair, restores their
// unfinished game from the store, or starts a new one.
func (g *GameKeeper) CreateOrResume(ctx context.Context, p0, p1 string, mode GameMode) (*GameSession, bool, error) {
	if p0 == p1 {
		return nil, false, ErrSamePlayer
	}
	rules, err := g.modes.Rules(mode)
	if err != nil {
		return nil, false, err
	}
	key := pairOf(p0, p1)

	live, err := g.settle(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if live != nil {
		return live, true, nil
	}

	s, err := g.load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	resumed := s != nil
	if s == nil {
		board, err := ships.NewBoard(rules)
		if err != nil {
			return nil, false, err
		}
		s = newGameSession(uuid.NewString(), mode, [ships.Players]string{p0, p1}, board)
	}
	return g.register(s, resumed)
}

// ResumeFor returns the live session of user or restores the latest stored
// unfinished game they sit in. Games whose opponent is busy elsewhere are
// skipped.
func (g *GameKeeper) ResumeFor(ctx context.Context, user string) (*GameSession, bool, error) {
	if s, ok := g.Lookup(user); ok {
		return s, true, nil
	}
	if g.store == nil {
		return nil, false, nil
	}
	recs, err := g.store.FindByPlayer(ctx, user)
	if err != nil {
		return nil, false, &PersistenceError{Op: "find", Err: err}
	}
	for _, rec := range recs {
		key := pairOf(rec.Player0, rec.Player1)
		live, err := g.settle(ctx, key)
		if errors.Is(err, ErrAlreadyPlaying) {
			g.log.Debug().Str("game", rec.ID).Str("player", user).Msg("opponent busy, not resuming")
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if live != nil {
			return live, true, nil
		}
		s, err := g.restore(ctx, rec)
		if err != nil {
			return nil, false, err
		}
		if s == nil {
			continue
		}
		s, _, err = g.register(s, true)
		if errors.Is(err, ErrAlreadyPlaying) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	}
	return nil, false, nil
}

// settle returns the live session of the pair after retiring finished
// sessions that still block either player.
func (g *GameKeeper) settle(ctx context.Context, key pairKey) (*GameSession, error) {
	// lock order is keeper before session
	for {
		g.mu.Lock()
		if id, ok := g.byPair[key]; ok && g.games[id].Phase() != ships.Finished {
			s := g.games[id]
			g.mu.Unlock()
			return s, nil
		}
		stale, err := g.conflictLocked(key)
		g.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if stale == nil {
			return nil, nil
		}
		// a finished game that failed to persist blocks its players
		if err := g.Retire(ctx, stale); err != nil {
			return nil, err
		}
	}
}

// register adds s to the registry unless another caller registered the
// pair first, in which case that session is returned.
func (g *GameKeeper) register(s *GameSession, resumed bool) (*GameSession, bool, error) {
	key := pairOf(s.players[0], s.players[1])
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byPair[key]; ok && g.games[id].Phase() != ships.Finished {
		return g.games[id], true, nil
	}
	stale, err := g.conflictLocked(key)
	if err != nil {
		return nil, false, err
	}
	if stale != nil {
		return nil, false, ErrAlreadyPlaying
	}
	s.turnTimeout = g.turnTimeout
	s.onTurnExpired = g.onTurnExpired
	g.games[s.ID] = s
	g.byPair[key] = s.ID
	for _, p := range s.players {
		g.byPlayer[p] = s.ID
	}
	g.log.Info().Str("game", s.ID).Strs("players", s.players[:]).Stringer("mode", s.Mode).
		Bool("resumed", resumed).Msg("game registered")
	return s, resumed, nil
}

// load restores the pair's unfinished game, or returns nil when there is none.
func (g *GameKeeper) load(ctx context.Context, key pairKey) (*GameSession, error) {
	if g.store == nil {
		return nil, nil
	}
	rec, err := g.store.FindUnfinished(ctx, key[0], key[1])
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	return g.restore(ctx, rec)
}

// restore rebuilds a suspended session from rec. A stored game whose board
// is already over is closed in the store and nil is returned.
func (g *GameKeeper) restore(ctx context.Context, rec db.GameRecord) (*GameSession, error) {
	board, err := ships.Restore(rec.Snapshot)
	if err != nil {
		return nil, &PersistenceError{SessionID: rec.ID, Op: "restore", Err: err}
	}
	if w, ok := board.Winner(); ok {
		if err := g.store.SetStatus(ctx, rec.ID, db.WonBy(w)); err != nil {
			return nil, &PersistenceError{SessionID: rec.ID, Op: "close", Err: err}
		}
		g.log.Warn().Str("game", rec.ID).Msg("stored game was already decided")
		return nil, nil
	}
	s := newGameSession(rec.ID, GameMode(rec.Mode), [ships.Players]string{rec.Player0, rec.Player1}, board)
	s.version = rec.Version
	s.suspended = true
	s.restored = true
	return s, nil
}

// Lookup returns the unfinished session user plays in.
func (g *GameKeeper) Lookup(user string) (*GameSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byPlayer[user]
	if !ok {
		return nil, false
	}
	s := g.games[id]
	if s.Phase() == ships.Finished {
		return nil, false
	}
	return s, true
}

func (g *GameKeeper) Get(id string) (*GameSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.games[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

func (g *GameKeeper) List() []*GameSession {
	g.mu.Lock()
	defer g.mu.Unlock()

	sessions := make([]*GameSession, 0, len(g.games))
	for _, game := range g.games {
		sessions = append(sessions, game)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

// Persist saves the current state of s. Failures leave s serving.
func (g *GameKeeper) Persist(ctx context.Context, s *GameSession) error {
	if g.store == nil {
		return nil
	}
	rec := s.Snapshot()
	rec.UpdatedAt = time.Now()
	if err := g.store.SaveGame(ctx, rec); err != nil {
		g.log.Error().Err(err).Str("game", s.ID).Int64("version", rec.Version).Msg("save failed")
		return &PersistenceError{SessionID: s.ID, Op: "save", Err: err}
	}
	return nil
}

// Retire persists a finished session and drops it. On a failed save the
// session stays registered so a later Retire can try again.
func (g *GameKeeper) Retire(ctx context.Context, s *GameSession) error {
	if s.Phase() != ships.Finished {
		return ErrWrongPhase
	}
	if err := g.Persist(ctx, s); err != nil {
		return err
	}
	s.Close()

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.games[s.ID]; !ok {
		return nil
	}
	delete(g.games, s.ID)
	delete(g.byPair, pairOf(s.players[0], s.players[1]))
	for _, p := range s.players {
		if g.byPlayer[p] == s.ID {
			delete(g.byPlayer, p)
		}
	}
	g.log.Info().Str("game", s.ID).Msg("game retired")
	return nil
}
