// Package bxml implements the Binary XML (BXML) decoder and its
// template/substitution engine: the core of the Windows event-log decoding
// pipeline (spec §1-§5).
package bxml

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/evtxkit/evtxkit/internal/buf"
	"github.com/evtxkit/evtxkit/internal/wintime"
)

// ValueType is the BXML typed-value tag (spec §4.1).
type ValueType uint8

const (
	ValueNull       ValueType = 0x00
	ValueString     ValueType = 0x01
	ValueAnsiString ValueType = 0x02
	ValueInt8       ValueType = 0x03
	ValueUInt8      ValueType = 0x04
	ValueInt16      ValueType = 0x05
	ValueUInt16     ValueType = 0x06
	ValueInt32      ValueType = 0x07
	ValueUInt32     ValueType = 0x08
	ValueInt64      ValueType = 0x09
	ValueUInt64     ValueType = 0x0A
	ValueFloat      ValueType = 0x0B
	ValueDouble     ValueType = 0x0C
	ValueBool       ValueType = 0x0D
	ValueBinary     ValueType = 0x0E
	ValueGUID       ValueType = 0x0F
	ValueSizeT      ValueType = 0x10
	ValueFiletime   ValueType = 0x11
	ValueSystemtime ValueType = 0x12
	ValueSID        ValueType = 0x13
	ValueHexInt32   ValueType = 0x14
	ValueHexInt64   ValueType = 0x15
	ValueEvtHandle  ValueType = 0x20
	ValueBinXml     ValueType = 0x21
	ValueEvtXml     ValueType = 0x23

	descriptorTypeMask = 0x7F
	descriptorArrayBit = 0x80
)

// descriptorType strips the array bit, yielding the scalar type tag.
func descriptorType(raw uint8) ValueType {
	return ValueType(raw & descriptorTypeMask)
}

func descriptorIsArray(raw uint8) bool {
	return raw&descriptorArrayBit != 0
}

// fixedWidth returns the byte width of fixed-size scalar types, or 0 for
// variable-width / unsupported types.
func fixedWidth(t ValueType) int {
	switch t {
	case ValueInt8, ValueUInt8, ValueBool:
		return 1
	case ValueInt16, ValueUInt16:
		return 2
	case ValueInt32, ValueUInt32, ValueFloat, ValueHexInt32:
		return 4
	case ValueInt64, ValueUInt64, ValueDouble, ValueFiletime, ValueHexInt64:
		return 8
	case ValueGUID:
		return 16
	case ValueSystemtime:
		return 16
	}
	return 0
}

// readScalar decodes a single value of type t from data (the caller has
// already sliced the descriptor's declared size). A fixed-width type given
// fewer bytes than its width is a ValueDecodeError; bytes past that width
// are ignored. Pure function: no I/O beyond reading the given slice (spec §6).
func readScalar(t ValueType, data []byte) (any, error) {
	if w := fixedWidth(t); w > 0 && len(data) < w {
		return nil, newErr(ErrKindValueDecode, "type 0x%02x: need %d bytes, got %d", t, w, len(data))
	}
	switch t {
	case ValueNull:
		return nil, nil
	case ValueString:
		return decodeUTF16LE(data)
	case ValueAnsiString:
		return decodeANSI(data)
	case ValueInt8:
		return buf.I8(data), nil
	case ValueUInt8:
		return buf.U8(data), nil
	case ValueInt16:
		return buf.I16LE(data), nil
	case ValueUInt16:
		return buf.U16LE(data), nil
	case ValueInt32:
		return buf.I32LE(data), nil
	case ValueUInt32:
		return buf.U32LE(data), nil
	case ValueInt64:
		return buf.I64LE(data), nil
	case ValueUInt64:
		return buf.U64LE(data), nil
	case ValueFloat:
		return buf.F32LE(data), nil
	case ValueDouble:
		return buf.F64LE(data), nil
	case ValueBool:
		return buf.U8(data) != 0, nil
	case ValueBinary:
		return hex.EncodeToString(data), nil
	case ValueGUID:
		return readGUID(data)
	case ValueSizeT:
		return readSizeT(data)
	case ValueFiletime:
		return wintime.FromFiletime(buf.U64LE(data)), nil
	case ValueSystemtime:
		return readSystemtime(data), nil
	case ValueSID:
		return readSID(data)
	case ValueHexInt32:
		return fmt.Sprintf("0x%x", buf.U32LE(data)), nil
	case ValueHexInt64:
		return fmt.Sprintf("0x%x", buf.U64LE(data)), nil
	default:
		return nil, newErr(ErrKindValueDecode, "unsupported scalar type 0x%02x", t)
	}
}

// readArray loops readScalar over data until exactly len(data) bytes are
// consumed, per spec §4.1/§8 ("a whole number of elements fills exactly
// descriptor.size"). A width that doesn't evenly divide the buffer is a
// decode error.
func readArray(t ValueType, data []byte) ([]any, error) {
	w := fixedWidth(t)
	if w == 0 {
		// STRING/ANSI_STRING arrays aren't part of the spec'd fixed-width
		// element set; treat as unsupported in array mode.
		return nil, newErr(ErrKindValueDecode, "type 0x%02x has no fixed array width", t)
	}
	if len(data)%w != 0 {
		return nil, newErr(ErrKindValueDecode, "array of type 0x%02x: %d bytes not a multiple of width %d", t, len(data), w)
	}
	out := make([]any, 0, len(data)/w)
	for off := 0; off < len(data); off += w {
		v, err := readScalar(t, data[off:off+w])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadValue decodes one value-array entry per a (size, type, arrayFlag)
// descriptor (spec §4.1, §4.5 step 4). corrupt inputs never panic; they
// surface as a ValueDecodeError for the caller to absorb.
func ReadValue(rawType uint8, isArray bool, data []byte) (any, error) {
	t := descriptorType(rawType)
	if isArray {
		return readArray(t, data)
	}
	return readScalar(t, data)
}

func readGUID(data []byte) (string, error) {
	if len(data) != 16 {
		return "", newErr(ErrKindValueDecode, "guid: need 16 bytes, got %d", len(data))
	}
	u, err := uuid.FromBytes(data)
	if err != nil {
		return "", wrapErr(ErrKindValueDecode, err, "guid")
	}
	return "{" + strings.ToUpper(u.String()) + "}", nil
}

func readSizeT(data []byte) (string, error) {
	switch len(data) {
	case 4:
		return fmt.Sprintf("0x%x", buf.U32LE(data)), nil
	case 8:
		return fmt.Sprintf("0x%x", buf.U64LE(data)), nil
	default:
		return "", newErr(ErrKindValueDecode, "size_t: unexpected width %d", len(data))
	}
}

func readSystemtime(data []byte) wintime.SystemTime {
	return wintime.SystemTime{
		Year:         buf.U16LE(data[0:2]),
		Month:        buf.U16LE(data[2:4]),
		DayOfWeek:    buf.U16LE(data[4:6]),
		Day:          buf.U16LE(data[6:8]),
		Hour:         buf.U16LE(data[8:10]),
		Minute:       buf.U16LE(data[10:12]),
		Second:       buf.U16LE(data[12:14]),
		Milliseconds: buf.U16LE(data[14:16]),
	}
}

// readSID decodes revision(1), sub-auth-count(1), a 6-byte authority field
// (the identifier authority is its last byte), then sub-auth-count
// little-endian u32 sub-authorities (spec §4.1).
func readSID(data []byte) (string, error) {
	if len(data) < 8 {
		return "", newErr(ErrKindValueDecode, "sid: need at least 8 bytes, got %d", len(data))
	}
	revision := data[0]
	subAuthCount := int(data[1])
	authority := data[7] // last byte of the 6-byte authority field (offset 2..7)

	need := 8 + subAuthCount*4
	if len(data) < need {
		return "", newErr(ErrKindValueDecode, "sid: need %d bytes for %d sub-authorities, got %d", need, subAuthCount, len(data))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", revision, authority)
	for i := 0; i < subAuthCount; i++ {
		off := 8 + i*4
		fmt.Fprintf(&b, "-%d", buf.U32LE(data[off:off+4]))
	}
	return b.String(), nil
}
