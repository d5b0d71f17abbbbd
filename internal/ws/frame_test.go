package ws

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestEncodeAndReadBack(t *testing.T) {
	var stream bytes.Buffer
	if err := WriteClient(&stream, Encode(11, []byte{3, 4})); err != nil {
		t.Fatalf("write: %v", err)
	}
	// a text frame in between must be skipped
	if err := wsutil.WriteClientText(&stream, []byte("hello")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := WriteClient(&stream, Encode(1, nil)); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewServerReader(&stream)
	f, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Type != 11 || !bytes.Equal(f.Payload, []byte{3, 4}) {
		t.Fatalf("frame = %d %v", f.Type, f.Payload)
	}
	f.Release()

	f, err = r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Type != 1 || len(f.Payload) != 0 {
		t.Fatalf("frame = %d %v", f.Type, f.Payload)
	}
	f.Release()

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestServerFramesReadByClient(t *testing.T) {
	var stream bytes.Buffer
	if err := WriteServer(&stream, Encode(16, []byte("abc"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteClose(&stream); err != nil {
		t.Fatalf("close: %v", err)
	}
	r := NewClientReader(&stream)
	f, err := r.Next()
	if err != nil || f.Type != 16 || string(f.Payload) != "abc" {
		t.Fatalf("frame = %+v, %v", f, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("close frame should end the stream, got %v", err)
	}
}

func TestShortFrame(t *testing.T) {
	var stream bytes.Buffer
	if err := wsutil.WriteClientMessage(&stream, ws.OpBinary, []byte{9}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewServerReader(&stream).Next(); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("err = %v, want ErrFrameTooShort", err)
	}
}

func TestBufferClasses(t *testing.T) {
	for _, size := range []int{0, 8, 9, 512, 2000, MaxFrameSize} {
		buf := GetBuffer(size)
		if buf == nil || cap(*buf) < size {
			t.Fatalf("GetBuffer(%d) returned too small a buffer", size)
		}
		PutBuffer(buf)
	}
	if GetBuffer(MaxFrameSize+1) != nil {
		t.Fatalf("oversized request should return nil")
	}
}
