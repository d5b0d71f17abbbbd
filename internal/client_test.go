package internal

import (
	"math/rand"
	"net"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func testConn(id uint64, queue int) *ClientConn {
	server, client := net.Pipe()
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
	return newClientConn(id, server, queue, rate.NewLimiter(rate.Inf, 1), zerolog.Nop())
}

func TestClientHubSockets(t *testing.T) {
	h := NewClientHub()
	c1, c2 := testConn(1, 4), testConn(2, 4)
	defer c1.Close()
	defer c2.Close()

	client := h.Attach("alice", c1)
	if again := h.Attach("alice", c2); again != client || client.ConnCount() != 2 {
		t.Fatalf("second socket made a new client")
	}
	if !h.Online("alice") || h.Count() != 1 {
		t.Fatalf("alice not online")
	}

	client.Send(ServerCmds.Ping, nil)
	for _, c := range []*ClientConn{c1, c2} {
		if len(c.outbox) != 1 {
			t.Fatalf("conn %d got %d frames", c.ID, len(c.outbox))
		}
	}

	if left := h.Detach("alice", c1); left != 1 {
		t.Fatalf("left = %d", left)
	}
	if left := h.Detach("alice", c2); left != 0 || h.Online("alice") {
		t.Fatalf("alice still online")
	}
	if left := h.Detach("alice", c2); left != 0 {
		t.Fatalf("detach of unknown user = %d", left)
	}
}

func TestClientConnFullOutbox(t *testing.T) {
	c := testConn(1, 1)
	c.Send(ServerCmds.Ping, nil)
	c.Send(ServerCmds.Ping, nil)
	select {
	case <-c.Done():
	default:
		t.Fatalf("slow client kept its connection")
	}
	// sends after close are dropped
	c.Send(ServerCmds.Ping, nil)
}

func TestClientConnShutdownFlushes(t *testing.T) {
	c := testConn(1, 4)
	go c.writeLoop(0)
	c.Send(ServerCmds.Ping, nil)
	c.Shutdown()
	<-c.Done()
	if len(c.outbox) != 0 {
		t.Fatalf("%d frames left unsent", len(c.outbox))
	}
}

// BenchmarkClientHub mixes registrations and lookups over many users.
func BenchmarkClientHub(b *testing.B) {
	h := NewClientHub()
	const users = 100_000
	names := make([]string, users)
	conns := make([]*ClientConn, users)
	for i := range names {
		names[i] = "player" + strconv.Itoa(i)
		conns[i] = newClientConn(uint64(i), nil, 1, nil, zerolog.Nop())
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		i := 0
		for pb.Next() {
			n := r.Intn(users)
			if i%2 == 0 {
				h.Attach(names[n], conns[n])
			} else {
				h.Get(names[n])
			}
			i++
		}
	})
}
