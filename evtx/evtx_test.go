package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func appendU16(b []byte, v uint16) []byte { return append(b, byte(v), byte(v>>8)) }
func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func appendU64(b []byte, v uint64) []byte {
	return appendU32(appendU32(b, uint32(v)), uint32(v>>32))
}
func appendUTF16LE(b []byte, s string) []byte {
	for _, r := range s {
		b = append(b, byte(r), byte(r>>8))
	}
	return b
}

// appendInlineName encodes a name reference whose offset is chunk-absolute
// (spec §6(c)): base is the record payload's own absolute offset within the
// chunk, so that a record placed anywhere but the start of the chunk still
// round-trips through the inline/back-reference self-check.
func appendInlineName(b []byte, base int, name string) []byte {
	offset := uint32(base + len(b) + 4)
	b = appendU32(b, offset)
	b = appendU32(b, 0) // reserved
	b = appendU16(b, 0) // hash
	b = appendU16(b, uint16(len(name)))
	b = appendUTF16LE(b, name)
	b = appendU16(b, 0) // terminator
	return b
}

func appendOpenElement(b []byte, base int, name string) []byte {
	b = append(b, 0x01) // OPEN_START_ELEMENT, no attribute list
	b = appendU16(b, 0) // dependency id
	b = appendU32(b, 0) // data size
	return appendInlineName(b, base, name)
}

func appendOpenElementWithAttr(b []byte, base int, name, attrName, attrValue string) []byte {
	b = append(b, 0x41) // OPEN_START_ELEMENT | has-attribute-list flag
	b = appendU16(b, 0) // dependency id
	b = appendU32(b, 0) // data size
	b = appendInlineName(b, base, name)
	b = appendU32(b, 0) // attribute list byte size (unused by the decoder)
	b = append(b, 0x06) // ATTRIBUTE
	b = appendInlineName(b, base, attrName)
	b = append(b, 0x05) // VALUE
	b = append(b, 0x01) // type = STRING
	val := appendUTF16LE(nil, attrValue)
	b = appendU16(b, uint16(len(val)))
	b = append(b, val...)
	return b
}

// buildRecordBXML assembles Event/System/TimeCreated[SystemTime] as a bare
// element tree (no TEMPLATE_INSTANCE indirection). base is the record
// payload's absolute offset within its enclosing chunk, matching where
// buildChunkWithOneRecord will place it (spec §6(c): name offsets are
// chunk-absolute, not record-relative).
func buildRecordBXML(base int) []byte {
	buf := append([]byte{}, 0x0F, 1, 1, 0) // FRAGMENT_HEADER
	buf = appendOpenElement(buf, base, "Event")
	buf = append(buf, 0x02) // CLOSE_START_ELEMENT (Event)
	buf = appendOpenElement(buf, base, "System")
	buf = append(buf, 0x02) // CLOSE_START_ELEMENT (System)
	buf = appendOpenElementWithAttr(buf, base, "TimeCreated", "SystemTime", "2024-01-01T00:00:00Z")
	buf = append(buf, 0x03) // CLOSE_EMPTY_ELEMENT (TimeCreated)
	buf = append(buf, 0x04) // END_ELEMENT (closes System's children)
	buf = append(buf, 0x04) // END_ELEMENT (closes Event's children)
	return buf
}

func buildChunkWithOneRecord(recordID uint64, payload []byte) []byte {
	data := make([]byte, chunkSize)
	copy(data[0:8], chunkSignature)
	// FreeSpaceOffset left at 0 (non-empty); other header fields default 0.

	pos := chunkHeaderSize
	size := uint32(recordHeaderLen + len(payload) + 4)

	rec := appendU32(nil, recordSignature)
	rec = appendU32(rec, size)
	rec = appendU64(rec, recordID)
	rec = appendU64(rec, 0) // time written, unused by this decoder
	rec = append(rec, payload...)
	rec = appendU32(rec, size) // size copy trailer

	copy(data[pos:pos+len(rec)], rec)
	return data
}

func TestNewParsesFileHeader(t *testing.T) {
	data := make([]byte, fileHeaderSize)
	copy(data[0:8], fileSignature)
	data = appendU16FixedAt(data, 40, 128) // header_block_size

	r, err := New(data)
	require.NoError(t, err)
	require.Equal(t, uint16(128), r.Header.HeaderBlockSize)
}

func appendU16FixedAt(b []byte, off int, v uint16) []byte {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	return b
}

func TestNewChunkRejectsBadSignature(t *testing.T) {
	data := make([]byte, chunkSize)
	_, err := newChunk(data)
	require.Error(t, err)
}

func TestChunkRecordsDecodesAndKeepsTimestampedRecord(t *testing.T) {
	// buildChunkWithOneRecord always places its one record at chunkHeaderSize,
	// so the record's BXML payload begins at chunkHeaderSize+recordHeaderLen,
	// non-zero: this exercises the realistic case where inline name offsets
	// are chunk-absolute rather than record-relative (spec §6(c)).
	payload := buildRecordBXML(chunkHeaderSize + recordHeaderLen)
	data := buildChunkWithOneRecord(7, payload)

	c, err := newChunk(data)
	require.NoError(t, err)

	records := c.Records()
	require.Len(t, records, 1)
	require.Equal(t, uint64(7), records[0].RecordID)

	v, ok := records[0].Fields.Get("TimeCreated_SystemTime")
	require.True(t, ok)
	require.Equal(t, "2024-01-01T00:00:00Z", v)
}
