package internal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zefir/statki-go-backend/logger"
)

// StartFunc is called once both players of a match accepted.
type StartFunc func(ctx context.Context, mode GameMode, players [2]Peer)

type MatchmakerOptions struct {
	QueueSize     int
	AcceptTimeout time.Duration
	// IDs is shared by all matchmakers so match ids are unique per process.
	IDs *atomic.Uint32
	// Eligible reports whether a user may still be paired.
	Eligible func(user string) bool
	Start    StartFunc
}

// Matchmaker pairs players of one mode. All queue state is owned by the Run
// goroutine; everything else talks to it over channels.
type Matchmaker struct {
	mode GameMode
	opts MatchmakerOptions

	queue      chan Peer
	acceptChan chan playerResponse
	removeChan chan string
	timeouts   chan uint32
	done       chan struct{}

	waiting []Peer
	pending map[uint32]*pendingMatch

	log zerolog.Logger
}

type pendingMatch struct {
	id       uint32
	players  [2]Peer
	timer    *time.Timer
	accepted [2]bool
}

type playerResponse struct {
	matchID uint32
	user    string
	accept  bool
}

func NewMatchmaker(mode GameMode, opts MatchmakerOptions) *Matchmaker {
	if opts.IDs == nil {
		opts.IDs = new(atomic.Uint32)
	}
	if opts.Eligible == nil {
		opts.Eligible = func(string) bool { return true }
	}
	return &Matchmaker{
		mode:       mode,
		opts:       opts,
		queue:      make(chan Peer, opts.QueueSize),
		acceptChan: make(chan playerResponse),
		removeChan: make(chan string),
		timeouts:   make(chan uint32),
		done:       make(chan struct{}),
		pending:    make(map[uint32]*pendingMatch),
		log:        logger.Component("matchmaker").With().Stringer("mode", mode).Logger(),
	}
}

func (m *Matchmaker) Mode() GameMode { return m.mode }

func (m *Matchmaker) Enqueue(p Peer) error {
	if !m.opts.Eligible(p.Name()) {
		return ErrAlreadyPlaying
	}
	select {
	case m.queue <- p:
		m.log.Debug().Str("player", p.Name()).Msg("queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Respond forwards an accept or decline for a match found earlier.
func (m *Matchmaker) Respond(matchID uint32, user string, accept bool) {
	select {
	case m.acceptChan <- playerResponse{matchID: matchID, user: user, accept: accept}:
	case <-m.done:
	}
}

// Remove drops user from the queue and cancels their pending match.
func (m *Matchmaker) Remove(user string) {
	select {
	case m.removeChan <- user:
	case <-m.done:
	}
}

func (m *Matchmaker) Run(ctx context.Context) {
	defer close(m.done)
	m.log.Info().Msg("matchmaker started")
	for {
		select {
		case p := <-m.queue:
			m.add(p)
			m.pair()
		case resp := <-m.acceptChan:
			m.handlePlayerResponse(ctx, resp)
			m.pair()
		case user := <-m.removeChan:
			m.remove(user)
			m.pair()
		case id := <-m.timeouts:
			m.handleTimeout(id)
			m.pair()
		case <-ctx.Done():
			for _, pm := range m.pending {
				pm.timer.Stop()
			}
			return
		}
	}
}

// queued reports whether user is waiting or inside a pending match.
func (m *Matchmaker) queued(user string) bool {
	for _, p := range m.waiting {
		if p.Name() == user {
			return true
		}
	}
	for _, pm := range m.pending {
		if pm.players[0].Name() == user || pm.players[1].Name() == user {
			return true
		}
	}
	return false
}

func (m *Matchmaker) add(p Peer) {
	if m.queued(p.Name()) {
		return
	}
	m.waiting = append(m.waiting, p)
}

func (m *Matchmaker) pair() {
	for len(m.waiting) >= 2 {
		p1, p2 := m.waiting[0], m.waiting[1]
		if !m.opts.Eligible(p1.Name()) {
			m.waiting = m.waiting[1:]
			continue
		}
		if !m.opts.Eligible(p2.Name()) {
			m.waiting = append(m.waiting[:1:1], m.waiting[2:]...)
			continue
		}
		m.waiting = m.waiting[2:]

		id := m.opts.IDs.Add(1)
		pm := &pendingMatch{id: id, players: [2]Peer{p1, p2}}
		pm.timer = time.AfterFunc(m.opts.AcceptTimeout, func() {
			select {
			case m.timeouts <- id:
			case <-m.done:
			}
		})
		m.pending[id] = pm

		p1.Send(ServerCmds.GameFound, pack(GameFoundLayout, id, p2.Name()))
		p2.Send(ServerCmds.GameFound, pack(GameFoundLayout, id, p1.Name()))
		m.log.Info().Uint32("match", id).Str("p1", p1.Name()).Str("p2", p2.Name()).Msg("match found")
	}
}

func (m *Matchmaker) handlePlayerResponse(ctx context.Context, resp playerResponse) {
	pm, exists := m.pending[resp.matchID]
	if !exists {
		return
	}
	seat := -1
	for i, p := range pm.players {
		if p.Name() == resp.user {
			seat = i
		}
	}
	if seat < 0 {
		return
	}

	if !resp.accept {
		m.cancel(pm, seat)
		return
	}

	pm.accepted[seat] = true
	if pm.accepted[0] && pm.accepted[1] {
		pm.timer.Stop()
		delete(m.pending, pm.id)
		m.log.Info().Uint32("match", pm.id).Msg("match accepted")
		go m.opts.Start(ctx, m.mode, pm.players)
	}
}

// cancel drops pm because the player in seat left it. The other player is
// told and goes back into the queue.
func (m *Matchmaker) cancel(pm *pendingMatch, seat int) {
	pm.timer.Stop()
	delete(m.pending, pm.id)
	other := pm.players[1-seat]
	other.Send(ServerCmds.GameDeclined, nil)
	m.add(other)
}

// handleTimeout ends a match nobody completed. Only players that had
// accepted go back into the queue.
func (m *Matchmaker) handleTimeout(id uint32) {
	pm, exists := m.pending[id]
	if !exists {
		return
	}
	delete(m.pending, id)
	for seat, p := range pm.players {
		p.Send(ServerCmds.GameSearchTimeout, nil)
		if pm.accepted[seat] {
			m.add(p)
		}
	}
}

func (m *Matchmaker) remove(user string) {
	kept := m.waiting[:0]
	for _, p := range m.waiting {
		if p.Name() != user {
			kept = append(kept, p)
		}
	}
	m.waiting = kept
	for _, pm := range m.pending {
		for seat, p := range pm.players {
			if p.Name() == user {
				m.cancel(pm, seat)
				break
			}
		}
	}
}
