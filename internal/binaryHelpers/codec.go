package bh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type FieldType int

const (
	Int8 FieldType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Bool
	// Str is a UTF-8 string prefixed with its byte length as a big endian uint16.
	Str
)

var ErrShortBuffer = errors.New("not enough data to unpack")

// Layout is the ordered list of fields of one message payload.
type Layout []FieldType

func fixedSize(f FieldType) int {
	switch f {
	case Int8, Uint8, Bool:
		return 1
	case Int16, Uint16, Str:
		return 2
	case Int32, Uint32:
		return 4
	case Int64, Uint64:
		return 8
	default:
		return 0
	}
}

func (l Layout) size(values []any) (int, error) {
	total := 0
	for i, f := range l {
		n := fixedSize(f)
		if n == 0 {
			return 0, fmt.Errorf("unsupported field type: %v", f)
		}
		if f == Str {
			s, ok := values[i].(string)
			if !ok {
				return 0, fmt.Errorf("field %d: want string, got %T", i, values[i])
			}
			if len(s) > math.MaxUint16 {
				return 0, fmt.Errorf("field %d: string of %d bytes too long", i, len(s))
			}
			n += len(s)
		}
		total += n
	}
	return total, nil
}

// Pack encodes values big endian in the order given by the layout.
func (l Layout) Pack(values ...any) ([]byte, error) {
	if len(l) != len(values) {
		return nil, fmt.Errorf("layout has %d fields, got %d values", len(l), len(values))
	}
	n, err := l.size(values)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	off := 0
	for i, f := range l {
		v := values[i]
		ok := true
		switch f {
		case Int8:
			var x int8
			x, ok = v.(int8)
			buf[off] = byte(x)
		case Uint8:
			var x uint8
			x, ok = v.(uint8)
			buf[off] = x
		case Bool:
			var x bool
			x, ok = v.(bool)
			if x {
				buf[off] = 1
			}
		case Int16:
			var x int16
			x, ok = v.(int16)
			binary.BigEndian.PutUint16(buf[off:], uint16(x))
		case Uint16:
			var x uint16
			x, ok = v.(uint16)
			binary.BigEndian.PutUint16(buf[off:], x)
		case Int32:
			var x int32
			x, ok = v.(int32)
			binary.BigEndian.PutUint32(buf[off:], uint32(x))
		case Uint32:
			var x uint32
			x, ok = v.(uint32)
			binary.BigEndian.PutUint32(buf[off:], x)
		case Int64:
			var x int64
			x, ok = v.(int64)
			binary.BigEndian.PutUint64(buf[off:], uint64(x))
		case Uint64:
			var x uint64
			x, ok = v.(uint64)
			binary.BigEndian.PutUint64(buf[off:], x)
		case Str:
			s := v.(string) // checked by size
			binary.BigEndian.PutUint16(buf[off:], uint16(len(s)))
			copy(buf[off+2:], s)
			off += len(s)
		}
		if !ok {
			return nil, fmt.Errorf("field %d: %T does not match field type %v", i, v, f)
		}
		off += fixedSize(f)
	}
	return buf, nil
}

// Unpack decodes data according to the layout. Trailing bytes are ignored.
func (l Layout) Unpack(data []byte) ([]any, error) {
	out := make([]any, 0, len(l))
	off := 0
	for _, f := range l {
		n := fixedSize(f)
		if n == 0 {
			return nil, fmt.Errorf("unsupported field type: %v", f)
		}
		if off+n > len(data) {
			return nil, ErrShortBuffer
		}
		b := data[off:]
		switch f {
		case Int8:
			out = append(out, int8(b[0]))
		case Uint8:
			out = append(out, b[0])
		case Bool:
			out = append(out, b[0] != 0)
		case Int16:
			out = append(out, int16(binary.BigEndian.Uint16(b)))
		case Uint16:
			out = append(out, binary.BigEndian.Uint16(b))
		case Int32:
			out = append(out, int32(binary.BigEndian.Uint32(b)))
		case Uint32:
			out = append(out, binary.BigEndian.Uint32(b))
		case Int64:
			out = append(out, int64(binary.BigEndian.Uint64(b)))
		case Uint64:
			out = append(out, binary.BigEndian.Uint64(b))
		case Str:
			strLen := int(binary.BigEndian.Uint16(b))
			if off+n+strLen > len(data) {
				return nil, ErrShortBuffer
			}
			out = append(out, string(b[2:2+strLen]))
			off += strLen
		}
		off += n
	}
	return out, nil
}
