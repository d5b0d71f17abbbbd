package bh

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func randomValue(rnd *rand.Rand, ft FieldType) any {
	switch ft {
	case Int8:
		return int8(rnd.Intn(1<<8) - 1<<7)
	case Uint8:
		return uint8(rnd.Intn(1 << 8))
	case Int16:
		return int16(rnd.Intn(1<<16) - 1<<15)
	case Uint16:
		return uint16(rnd.Intn(1 << 16))
	case Int32:
		return rnd.Int31()
	case Uint32:
		return rnd.Uint32()
	case Int64:
		return rnd.Int63()
	case Uint64:
		return rnd.Uint64()
	case Bool:
		return rnd.Intn(2) == 1
	case Str:
		b := make([]byte, rnd.Intn(40))
		for i := range b {
			b[i] = byte('a' + rnd.Intn(26))
		}
		return string(b)
	default:
		return nil
	}
}

func TestPackUnpackFormatRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	formats := []Layout{
		{Uint16, Int8, Uint64},
		{Int8, Uint8, Int16, Uint32},
		{Str, Uint8, Str, Bool},
		{Int32, Uint16, Int64},
		{Str},
	}

	for _, format := range formats {
		for i := 0; i < 100; i++ {
			values := make([]any, len(format))
			for idx, ft := range format {
				values[idx] = randomValue(rnd, ft)
			}

			packed, err := format.Pack(values...)
			if err != nil {
				t.Fatalf("Pack failed for format %v values %v: %v", format, values, err)
			}

			unpacked, err := format.Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack failed for format %v values %v: %v", format, values, err)
			}

			if !reflect.DeepEqual(values, unpacked) {
				t.Errorf("Mismatch after unpack\nFormat: %v\nOriginal: %v\nUnpacked: %v", format, values, unpacked)
			}
		}
	}
}

func TestPackRejectsWrongTypes(t *testing.T) {
	if _, err := (Layout{Uint8}).Pack(int8(1)); err == nil {
		t.Fatalf("expected type mismatch error")
	}
	if _, err := (Layout{Str}).Pack(7); err == nil {
		t.Fatalf("expected string type error")
	}
	if _, err := (Layout{Uint8, Uint8}).Pack(uint8(1)); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestUnpackShortData(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		data   []byte
	}{
		{"empty", Layout{Uint8}, nil},
		{"half uint16", Layout{Uint16}, []byte{1}},
		{"string header only", Layout{Str}, []byte{0, 5, 'a'}},
		{"second field missing", Layout{Uint8, Uint32}, []byte{1, 0, 0}},
	}
	for _, tt := range tests {
		if _, err := tt.layout.Unpack(tt.data); !errors.Is(err, ErrShortBuffer) {
			t.Errorf("%s: err = %v, want ErrShortBuffer", tt.name, err)
		}
	}
}
