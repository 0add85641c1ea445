// Package buf contains helpers for endian-safe decoding routines.
package buf

import (
	"encoding/binary"
	"math"
)

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// U32BE reads a big-endian uint32 from b. Returns 0 when b is too short.
func U32BE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// I32LE reads a little-endian int32 from b. Returns 0 when b is too short.
func I32LE(b []byte) int32 {
	if len(b) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

// U8 reads a single byte from b. Returns 0 when b is empty.
func U8(b []byte) uint8 {
	if len(b) < 1 {
		return 0
	}
	return b[0]
}

// I8 reads a single signed byte from b. Returns 0 when b is empty.
func I8(b []byte) int8 {
	return int8(U8(b))
}

// I16LE reads a little-endian int16 from b. Returns 0 when b is too short.
func I16LE(b []byte) int16 {
	return int16(U16LE(b))
}

// I64LE reads a little-endian int64 from b. Returns 0 when b is too short.
func I64LE(b []byte) int64 {
	return int64(U64LE(b))
}

// F32LE reads a little-endian IEEE-754 single-precision float from b.
func F32LE(b []byte) float32 {
	return math.Float32frombits(U32LE(b))
}

// F64LE reads a little-endian IEEE-754 double-precision float from b.
func F64LE(b []byte) float64 {
	return math.Float64frombits(U64LE(b))
}
