// Package evt reads legacy "LfLe" Windows Event Log (.evt) files, the
// pre-Vista fixed-record format used up through Windows XP/2003. Unlike
// evtx, these records carry no Binary XML: every field is a flat, already
// fully-typed struct, so this package has no dependency on bxml.
package evt

import (
	"time"

	"github.com/evtxkit/evtxkit/internal/buf"
	"github.com/evtxkit/evtxkit/internal/evlog"
)

const (
	signature = "LfLe"

	headerSize       = 0x30 // sizeof(EVENTLOGHEADER)
	recordHeaderSize = 56   // sizeof(EVENTLOGRECORD)
	eofRecordSize    = 40   // sizeof(EVENTLOGEOF)

	flagDirty = 0x0001

	blockSize  = 4096
	needleLen  = 20
	overlapLen = needleLen - 1
)

// dirtyNeedle is the floating EOF record's fixed first 20 bytes: RecordSize
// (40), then the four ULONG sentinels 0x11111111, 0x22222222, 0x33333333,
// 0x44444444, used to locate it by scanning when the file header's
// StartOffset/EndOffset can no longer be trusted (spec §6).
var dirtyNeedle = []byte{
	0x28, 0x00, 0x00, 0x00,
	0x11, 0x11, 0x11, 0x11,
	0x22, 0x22, 0x22, 0x22,
	0x33, 0x33, 0x33, 0x33,
	0x44, 0x44, 0x44, 0x44,
}

// Header is the parsed EVENTLOGHEADER.
type Header struct {
	MajorVersion        uint32
	MinorVersion        uint32
	StartOffset         uint32
	EndOffset           uint32
	CurrentRecordNumber uint32
	OldestRecordNumber  uint32
	MaxSize             uint32
	Flags               uint32
	Retention           uint32
}

func (h Header) dirty() bool { return h.Flags&flagDirty == flagDirty }

// Record is one decoded EVENTLOGRECORD with its variable-length fields
// (source, computer, user SID, strings, binary data) already materialized.
type Record struct {
	RecordNumber       uint32
	TimeGenerated      time.Time
	TimeWritten        time.Time
	EventID            uint32
	EventCode          uint16
	EventFacility      uint16
	EventCustomerFlag  bool
	EventSeverity      uint8
	EventType          uint16
	EventCategory      uint16
	SourceName         string
	ComputerName       string
	UserSID            string
	Strings            []string
	Data               []byte
}

// recordHeader is the fixed 56-byte EVENTLOGRECORD prefix every record
// starts with; SourceName/ComputerName/UserSID/Strings/Data follow it at
// offsets relative to the record's own start.
type recordHeader struct {
	length              uint32
	reserved            uint32
	recordNumber        uint32
	timeGenerated       uint32
	timeWritten         uint32
	eventID             uint32
	eventType           uint16
	numStrings          uint16
	eventCategory       uint16
	reservedFlags       uint16
	closingRecordNumber uint32
	stringOffset        uint32
	userSidLength       uint32
	userSidOffset       uint32
	dataLength          uint32
	dataOffset          uint32
}

func parseRecordHeader(b []byte) recordHeader {
	return recordHeader{
		length:              buf.U32LE(b[0:4]),
		reserved:            buf.U32LE(b[4:8]),
		recordNumber:        buf.U32LE(b[8:12]),
		timeGenerated:       buf.U32LE(b[12:16]),
		timeWritten:         buf.U32LE(b[16:20]),
		eventID:             buf.U32LE(b[20:24]),
		eventType:           buf.U16LE(b[24:26]),
		numStrings:          buf.U16LE(b[26:28]),
		eventCategory:       buf.U16LE(b[28:30]),
		reservedFlags:       buf.U16LE(b[30:32]),
		closingRecordNumber: buf.U32LE(b[32:36]),
		stringOffset:        buf.U32LE(b[36:40]),
		userSidLength:       buf.U32LE(b[40:44]),
		userSidOffset:       buf.U32LE(b[44:48]),
		dataLength:          buf.U32LE(b[48:52]),
		dataOffset:          buf.U32LE(b[52:56]),
	}
}

// isEOFRecord reports whether a 56-byte recordHeader read is actually a
// floating 40-byte EVENTLOGEOF record overlaid on the same bytes: the
// EVENTLOGEOF's RecordSizeBeginning/One/Four fields land at the
// recordHeader's length/reserved/timeWritten offsets (spec §6).
func isEOFRecord(h recordHeader) bool {
	return h.length == eofRecordSize && h.reserved == 0x11111111 && h.timeWritten == 0x44444444
}

func isHeaderRecord(h recordHeader) bool {
	return h.length == headerSize
}

type eofRecord struct {
	beginRecord         uint32
	endRecord           uint32
	currentRecordNumber uint32
	oldestRecordNumber  uint32
}

func parseEOFRecord(b []byte) eofRecord {
	return eofRecord{
		beginRecord:         buf.U32LE(b[20:24]),
		endRecord:           buf.U32LE(b[24:28]),
		currentRecordNumber: buf.U32LE(b[28:32]),
		oldestRecordNumber:  buf.U32LE(b[32:36]),
	}
}

// Reader decodes a complete legacy .evt file's byte image (spec §6).
type Reader struct {
	data   []byte
	header Header

	startOffset         uint32
	endOffset           uint32
	currentRecordNumber uint32
	oldestRecordNumber  uint32
	postHeaderOffset    uint32
}

// New parses an .evt file's header, recovering start/end offsets from the
// floating EOF record when the dirty flag is set (spec §6).
func New(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, newErr("file too short for EVENTLOGHEADER")
	}
	if string(data[4:8]) != signature {
		return nil, newErr("bad EVENTLOGHEADER signature")
	}
	h := Header{
		MajorVersion:        buf.U32LE(data[8:12]),
		MinorVersion:        buf.U32LE(data[12:16]),
		StartOffset:         buf.U32LE(data[16:20]),
		EndOffset:           buf.U32LE(data[20:24]),
		CurrentRecordNumber: buf.U32LE(data[24:28]),
		OldestRecordNumber:  buf.U32LE(data[28:32]),
		MaxSize:             buf.U32LE(data[32:36]),
		Flags:               buf.U32LE(data[36:40]),
		Retention:           buf.U32LE(data[40:44]),
	}

	r := &Reader{
		data:                data,
		header:              h,
		startOffset:         h.StartOffset,
		endOffset:           h.EndOffset,
		currentRecordNumber: h.CurrentRecordNumber,
		oldestRecordNumber:  h.OldestRecordNumber,
		postHeaderOffset:    headerSize,
	}

	if h.dirty() {
		found := false
		for _, off := range findNeedle(data, dirtyNeedle) {
			if off+eofRecordSize > len(data) {
				continue
			}
			eof := parseEOFRecord(data[off : off+eofRecordSize])
			r.updateMetaFromEOF(eof)
			found = true
			break
		}
		if !found {
			return nil, newErr("dirty evt file with no floating EOF record")
		}
	}
	return r, nil
}

func (r *Reader) updateMetaFromEOF(e eofRecord) {
	r.startOffset = e.beginRecord
	r.endOffset = e.endRecord
	r.currentRecordNumber = e.currentRecordNumber
	r.oldestRecordNumber = e.oldestRecordNumber
}

// findNeedle block-scans data for needle, overlapping consecutive blocks by
// len(needle)-1 bytes so a match straddling a block boundary is never
// missed (spec §6).
func findNeedle(data []byte, needle []byte) []int {
	var out []int
	step := blockSize - overlapLen
	if step <= 0 {
		step = blockSize
	}
	for offset := 0; offset < len(data); offset += step {
		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[offset:end]
		if p := indexBytes(block, needle); p != -1 {
			out = append(out, offset+p)
		}
		if end == len(data) {
			break
		}
	}
	return out
}

func indexBytes(haystack, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

// Iterator walks records in file order, handling wraparound past the
// header and a live metadata update when an unexpected EOF record is
// encountered mid-stream (spec §6), mirroring Reader.__iter__.
type Iterator struct {
	r             *Reader
	pos           int
	lastPos       int
	startReadsLeft int
	rec           Record
	err           error
	done          bool
}

// Records returns an Iterator positioned at the file's start offset.
func (r *Reader) Records() *Iterator {
	return &Iterator{
		r:              r,
		pos:            int(r.startOffset),
		lastPos:        -1,
		startReadsLeft: 2,
	}
}

// Next advances to the next record, returning false when iteration ends.
// Malformed records are logged and skipped and truncated input ends
// iteration, so Err reports nil in every case.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	r := it.r
	for {
		if it.pos == it.lastPos {
			it.done = true
			return false
		}
		if it.pos == int(r.startOffset) {
			it.startReadsLeft--
		}
		if it.startReadsLeft <= 0 {
			it.done = true
			return false
		}

		if len(r.data)-it.pos < recordHeaderSize {
			if int(r.postHeaderOffset) == int(r.startOffset) {
				it.done = true
				return false
			}
			it.pos = int(r.postHeaderOffset)
		}

		if it.pos+recordHeaderSize > len(r.data) {
			it.done = true
			return false
		}
		hdr := parseRecordHeader(r.data[it.pos : it.pos+recordHeaderSize])

		if isEOFRecord(hdr) {
			if it.pos+eofRecordSize > len(r.data) {
				it.done = true
				return false
			}
			eof := parseEOFRecord(r.data[it.pos : it.pos+eofRecordSize])
			if eof.beginRecord == r.startOffset && eof.endRecord == r.endOffset {
				it.done = true
				return false
			}
			r.updateMetaFromEOF(eof)
			it.pos = int(r.startOffset)
			continue
		}

		nextPos := it.pos + int(hdr.length)
		recordStart := it.pos
		body := r.data
		if nextPos > len(r.data) {
			// The record wraps: the file rotated and the tail of this
			// record lives back at the start of the ring (spec §6).
			part1 := r.data[it.pos:]
			part2Size := int(hdr.length) - len(part1)
			post := int(r.postHeaderOffset)
			if post+part2Size > len(r.data) {
				it.done = true
				return false
			}
			part2 := r.data[post : post+part2Size]
			joined := make([]byte, 0, len(part1)+len(part2))
			joined = append(joined, part1...)
			joined = append(joined, part2...)
			body = joined
			recordStart = 0
			nextPos = post + part2Size
		} else if nextPos == len(r.data) {
			nextPos = int(r.postHeaderOffset)
		}

		if hdr.userSidOffset > r.header.MaxSize {
			it.pos += int(hdr.length)
			continue
		}

		rec, err := parseRecord(hdr, body, recordStart)
		if err != nil {
			evlog.Warn("skipping malformed evt record", "error", err)
			it.pos += int(hdr.length)
			continue
		}
		it.rec = rec
		it.lastPos = it.pos
		it.pos = nextPos
		return true
	}
}

func (it *Iterator) Record() Record { return it.rec }
func (it *Iterator) Err() error     { return it.err }

// parseRecord materializes one record's variable-length fields. body is the
// (possibly wraparound-joined) byte range starting at the record header;
// offsets in hdr are relative to recordStart within body.
func parseRecord(hdr recordHeader, body []byte, recordStart int) (Record, error) {
	post := recordStart + recordHeaderSize
	source, n, err := readWCharZ(body, post)
	if err != nil {
		return Record{}, err
	}
	computer, _, err := readWCharZ(body, post+n)
	if err != nil {
		return Record{}, err
	}

	var sid string
	if hdr.userSidLength > 0 {
		off := recordStart + int(hdr.userSidOffset)
		end := off + int(hdr.userSidLength)
		if end > len(body) || off < 0 {
			return Record{}, newErr("user sid out of range")
		}
		sid = reprSID(body[off:end])
	}

	var strs []string
	if hdr.stringOffset > 0 {
		off := recordStart + int(hdr.stringOffset)
		for i := 0; i < int(hdr.numStrings); i++ {
			s, n, err := readWCharZ(body, off)
			if err != nil {
				return Record{}, err
			}
			strs = append(strs, s)
			off += n
		}
	}

	var data []byte
	if hdr.dataLength > 0 {
		off := recordStart + int(hdr.dataOffset)
		end := off + int(hdr.dataLength)
		if end > len(body) || off < 0 {
			return Record{}, newErr("record data out of range")
		}
		data = append([]byte(nil), body[off:end]...)
	}

	return Record{
		RecordNumber:      hdr.recordNumber,
		TimeGenerated:     time.Unix(int64(hdr.timeGenerated), 0).UTC(),
		TimeWritten:       time.Unix(int64(hdr.timeWritten), 0).UTC(),
		EventID:           hdr.eventID,
		EventCode:         uint16(hdr.eventID & 0x0000FFFF),
		EventFacility:     uint16((hdr.eventID & 0x0FFF0000) >> 16),
		EventCustomerFlag: hdr.eventID&0x20000000 != 0,
		EventSeverity:     uint8((hdr.eventID & 0xC0000000) >> 30),
		EventType:         hdr.eventType,
		EventCategory:     hdr.eventCategory,
		SourceName:        source,
		ComputerName:      computer,
		UserSID:           sid,
		Strings:           strs,
		Data:              data,
	}, nil
}

// readWCharZ reads a NUL-terminated UTF-16LE string starting at off,
// returning the decoded text and the number of bytes consumed including the
// terminator.
func readWCharZ(data []byte, off int) (string, int, error) {
	if off < 0 || off > len(data) {
		return "", 0, newErr("wchar string offset out of range")
	}
	i := off
	for {
		if i+2 > len(data) {
			return "", 0, newErr("unterminated wchar string")
		}
		if data[i] == 0 && data[i+1] == 0 {
			break
		}
		i += 2
	}
	s, err := decodeUTF16LE(data[off:i])
	if err != nil {
		return "", 0, err
	}
	return s, (i - off) + 2, nil
}

// reprSID renders a raw SID byte blob as "S-rev-authority-sub1-sub2-..."
// (spec §6). Sub-authorities are read big-endian, matching the legacy
// record layout this format actually uses (distinct from the BXML SID
// type's little-endian sub-authorities).
func reprSID(s []byte) string {
	if len(s) < 8 {
		return "S-?"
	}
	revision := s[0]
	authority := u48BE(s[2:8])

	var b []byte
	b = appendDecimal(b, uint64(revision))
	b = append(b, '-')
	b = appendDecimal(b, authority)

	for i := 8; i+4 <= len(s); i += 4 {
		b = append(b, '-')
		b = appendDecimal(b, uint64(buf.U32BE(s[i:i+4])))
	}
	return "S-" + string(b)
}

func u48BE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func appendDecimal(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}
