package internal

import (
	"sync"
	"testing"
	"time"

	bh "github.com/zefir/statki-go-backend/internal/binaryHelpers"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

type sentMsg struct {
	t       MsgType
	payload []byte
}

// fakePeer records everything sent to it.
type fakePeer struct {
	name string
	mu   sync.Mutex
	msgs []sentMsg
}

func newFakePeer(name string) *fakePeer { return &fakePeer{name: name} }

func (p *fakePeer) Name() string { return p.name }

func (p *fakePeer) Send(t MsgType, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, sentMsg{t: t, payload: append([]byte(nil), payload...)})
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

func (p *fakePeer) types() []MsgType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MsgType, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.t
	}
	return out
}

func (p *fakePeer) count(t MsgType) int {
	n := 0
	for _, mt := range p.types() {
		if mt == t {
			n++
		}
	}
	return n
}

// payloads returns every payload of type t in arrival order.
func (p *fakePeer) payloads(t MsgType) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	for _, m := range p.msgs {
		if m.t == t {
			out = append(out, m.payload)
		}
	}
	return out
}

// last returns the payload of the latest message of type t.
func (p *fakePeer) last(t MsgType) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].t == t {
			return p.msgs[i].payload, true
		}
	}
	return nil, false
}

// waitFor polls until p got at least n messages of type t.
func (p *fakePeer) waitFor(tb testing.TB, t MsgType, n int) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.count(t) < n {
		if time.Now().After(deadline) {
			tb.Fatalf("%s: got %d messages of type %d, want %d (all: %v)", p.name, p.count(t), t, n, p.types())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func unpackLast(tb testing.TB, p *fakePeer, t MsgType, l bh.Layout) []any {
	tb.Helper()
	payload, ok := p.last(t)
	if !ok {
		tb.Fatalf("%s never got message %d (all: %v)", p.name, t, p.types())
	}
	v, err := l.Unpack(payload)
	if err != nil {
		tb.Fatalf("unpack %d: %v", t, err)
	}
	return v
}

// smallRules is a 10x10 board with a single 1x2 ship per player.
func smallRules() ships.Rules {
	r := ships.DefaultRules()
	r.Fleet = []ships.Size{{W: 1, H: 2}}
	return r
}

func horizontal(x, y int) ships.Placement {
	return ships.Placement{Length: 2, Orientation: ships.Horizontal, Position: ships.Cell{X: x, Y: y}}
}
