package ws

import "sync"

// size classes for payload buffers, smallest first
var classes = [...]int{8, 512, 2048, 65536}

var pools [len(classes)]sync.Pool

func init() {
	for i, size := range classes {
		size := size
		pools[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
}

// MaxFrameSize is the largest payload a single frame may carry.
const MaxFrameSize = 65536

// GetBuffer returns a pooled buffer with capacity of at least size, or nil
// when size exceeds MaxFrameSize.
func GetBuffer(size int) *[]byte {
	for i, c := range classes {
		if size <= c {
			return pools[i].Get().(*[]byte)
		}
	}
	return nil
}

// PutBuffer hands a buffer from GetBuffer back to its pool.
func PutBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	for i, c := range classes {
		if cap(*buf) == c {
			*buf = (*buf)[:c]
			pools[i].Put(buf)
			return
		}
	}
}
