// Package ws carries typed binary messages over WebSocket frames. Every
// frame starts with a big endian uint16 message type followed by the payload.
package ws

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrFrameTooShort = errors.New("payload too short for message type")
)

// Upgrade performs the server side handshake on a freshly accepted conn.
func Upgrade(conn net.Conn) error {
	_, err := ws.Upgrade(conn)
	return err
}

// Dial opens a client connection to a ws:// address.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, br, _, err := ws.DefaultDialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if br != nil {
		// the server already sent frames after the handshake
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Frame is one decoded message. Release must be called once the payload is
// no longer needed.
type Frame struct {
	Type    uint16
	Payload []byte
	buf     *[]byte
}

func (f *Frame) Release() {
	PutBuffer(f.buf)
	f.buf = nil
	f.Payload = nil
}

// Reader pulls binary frames off a connection, skipping other opcodes.
type Reader struct {
	r *wsutil.Reader
}

func NewServerReader(conn io.Reader) *Reader {
	return &Reader{r: wsutil.NewReader(conn, ws.StateServerSide)}
}

func NewClientReader(conn io.Reader) *Reader {
	return &Reader{r: wsutil.NewReader(conn, ws.StateClientSide)}
}

// Next blocks until a binary frame arrives. It returns io.EOF when the peer
// closes the connection. ErrFrameTooShort leaves the reader usable.
func (r *Reader) Next() (Frame, error) {
	for {
		hdr, err := r.r.NextFrame()
		if err != nil {
			return Frame{}, err
		}
		if hdr.OpCode == ws.OpClose {
			return Frame{}, io.EOF
		}
		if hdr.OpCode != ws.OpBinary {
			if _, err := io.CopyN(io.Discard, r.r, hdr.Length); err != nil {
				return Frame{}, fmt.Errorf("discard %v frame: %w", hdr.OpCode, err)
			}
			continue
		}

		size := int(hdr.Length)
		bufPtr := GetBuffer(size)
		if bufPtr == nil {
			return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
		}
		buf := (*bufPtr)[:size]
		if _, err := io.ReadFull(r.r, buf); err != nil {
			PutBuffer(bufPtr)
			return Frame{}, fmt.Errorf("read payload: %w", err)
		}
		if size < 2 {
			PutBuffer(bufPtr)
			return Frame{}, ErrFrameTooShort
		}
		return Frame{
			Type:    binary.BigEndian.Uint16(buf[0:2]),
			Payload: buf[2:],
			buf:     bufPtr,
		}, nil
	}
}

// Encode prefixes payload with its message type.
func Encode(msgType uint16, payload []byte) []byte {
	full := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(full, msgType)
	copy(full[2:], payload)
	return full
}

// WriteServer sends an encoded message as one unmasked binary frame.
func WriteServer(w io.Writer, frame []byte) error {
	return wsutil.WriteServerBinary(w, frame)
}

// WriteClient sends an encoded message as one masked binary frame.
func WriteClient(w io.Writer, frame []byte) error {
	return wsutil.WriteClientBinary(w, frame)
}

// WriteClose sends a close frame from the server side.
func WriteClose(w io.Writer) error {
	return ws.WriteFrame(w, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
}
