package evt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendWCharZ(b []byte, s string) []byte {
	for _, r := range s {
		b = append(b, byte(r), byte(r>>8))
	}
	return append(b, 0, 0)
}

func buildHeader(flags uint32) []byte {
	var h []byte
	h = appendU32(h, headerSize) // HeaderSize
	h = append(h, 'L', 'f', 'L', 'e')
	h = appendU32(h, 1) // MajorVersion
	h = appendU32(h, 1) // MinorVersion
	h = appendU32(h, headerSize) // StartOffset
	h = appendU32(h, headerSize) // EndOffset
	h = appendU32(h, 0)          // CurrentRecordNumber
	h = appendU32(h, 0)          // OldestRecordNumber
	h = appendU32(h, 0x10000)    // MaxSize
	h = appendU32(h, flags)      // Flags
	h = appendU32(h, 0)          // Retention
	h = appendU32(h, headerSize) // EndHeaderSize
	return h
}

func TestNewParsesCleanHeader(t *testing.T) {
	data := buildHeader(0)
	r, err := New(data)
	require.NoError(t, err)
	require.Equal(t, uint32(headerSize), r.startOffset)
	require.Equal(t, uint32(headerSize), r.endOffset)
}

func TestNewRejectsBadSignature(t *testing.T) {
	data := buildHeader(0)
	data[4] = 'X'
	_, err := New(data)
	require.Error(t, err)
}

func TestFindNeedleLocatesFloatingEOFAcrossBlockBoundary(t *testing.T) {
	data := make([]byte, blockSize+len(dirtyNeedle))
	copy(data[blockSize-5:], dirtyNeedle)

	offsets := findNeedle(data, dirtyNeedle)
	require.Contains(t, offsets, blockSize-5)
}

func TestParseRecordDecodesSourceComputerAndStrings(t *testing.T) {
	var body []byte
	// Placeholder header bytes; real values patched in below.
	hdr := make([]byte, recordHeaderSize)
	body = append(body, hdr...)
	body = appendWCharZ(body, "EventLog")
	body = appendWCharZ(body, "HOST1")
	stringOffset := len(body)
	body = appendWCharZ(body, "first")
	body = appendWCharZ(body, "second")

	h := recordHeader{
		length:        uint32(len(body)),
		recordNumber:  42,
		eventID:       0x00000064,
		eventType:     4,
		numStrings:    2,
		eventCategory: 1,
		stringOffset:  uint32(stringOffset),
	}

	rec, err := parseRecord(h, body, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(42), rec.RecordNumber)
	require.Equal(t, "EventLog", rec.SourceName)
	require.Equal(t, "HOST1", rec.ComputerName)
	require.Equal(t, []string{"first", "second"}, rec.Strings)
	require.Equal(t, uint16(100), rec.EventCode)
}

func TestReprSIDFormatsDecimalComponents(t *testing.T) {
	data := []byte{
		0x01,       // revision
		0x01,       // sub-authority count (unused by reprSID)
		0, 0, 0, 0, 0, 5, // authority = 5
		0x00, 0x00, 0x00, 0x15, // sub-authority 21, big-endian
	}
	require.Equal(t, "S-1-5-21", reprSID(data))
}
