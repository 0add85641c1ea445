// Package evtx reads modern "ElfFile"/"ElfChnk" Windows Event Log (.evtx)
// files: a file header followed by fixed 64KiB chunks, each chunk holding a
// sequence of BXML-encoded records plus the per-chunk name/template cache
// bxml's Session binds against (spec §6).
package evtx

import (
	"github.com/evtxkit/evtxkit/bxml"
	"github.com/evtxkit/evtxkit/internal/buf"
	"github.com/evtxkit/evtxkit/internal/evlog"
)

const (
	fileSignature  = "ElfFile\x00"
	chunkSignature = "ElfChnk\x00"

	fileHeaderSize  = 128
	chunkHeaderSize = 512
	chunkSize       = 0x10000
	recordHeaderLen = 24 // signature(4) + size(4) + recordID(8) + timeWritten(8)

	recordSignature = 0x00002A2A

	chunkFreeSpaceEmpty = 512
)

// FileHeader is the parsed EVTX_HEADER (spec §6).
type FileHeader struct {
	FirstChunk    uint64
	LastChunk     uint64
	NextRecordID  uint64
	HeaderSize    uint32
	MinorVersion  uint16
	MajorVersion  uint16
	HeaderBlockSize uint16
	NumChunks     uint16
	Flags         uint32
	Checksum      uint32
}

// ChunkHeader is the parsed EVTX_CHUNK fixed prefix (spec §6).
type ChunkHeader struct {
	FirstRecordNumber uint64
	LastRecordNumber  uint64
	FirstRecordID     uint64
	LastRecordID      uint64
	HeaderSize        uint32
	LastRecordOffset  uint32
	FreeSpaceOffset   uint32
	RecordsChecksum   uint32
	Flags             uint32
	Checksum          uint32
}

// Reader decodes a complete .evtx file's byte image, yielding one Chunk per
// 64KiB block after the file header (spec §6).
type Reader struct {
	data   []byte
	Header FileHeader
}

// New parses the file header, rejecting data shorter than the header or
// lacking the ElfFile signature.
func New(data []byte) (*Reader, error) {
	if len(data) < fileHeaderSize {
		return nil, newErr("file too short for EVTX_HEADER")
	}
	if string(data[0:8]) != fileSignature {
		return nil, newErr("bad EVTX_HEADER signature")
	}
	h := FileHeader{
		FirstChunk:      buf.U64LE(data[8:16]),
		LastChunk:       buf.U64LE(data[16:24]),
		NextRecordID:    buf.U64LE(data[24:32]),
		HeaderSize:      buf.U32LE(data[32:36]),
		MinorVersion:    buf.U16LE(data[36:38]),
		MajorVersion:    buf.U16LE(data[38:40]),
		HeaderBlockSize: buf.U16LE(data[40:42]),
		NumChunks:       buf.U16LE(data[42:44]),
		Flags:           buf.U32LE(data[120:124]),
		Checksum:        buf.U32LE(data[124:128]),
	}
	return &Reader{data: data, Header: h}, nil
}

// Chunks returns a slice of every full 64KiB chunk following the file
// header. A chunk that fails to parse (bad magic) is skipped with a logged
// warning rather than aborting the file (spec §7: chunk-level errors are
// contained to the chunk).
func (r *Reader) Chunks() []*Chunk {
	blockStart := int(r.Header.HeaderBlockSize)
	if blockStart == 0 {
		blockStart = fileHeaderSize
	}

	var chunks []*Chunk
	for off := blockStart; off+chunkSize <= len(r.data); off += chunkSize {
		c, err := newChunk(r.data[off : off+chunkSize])
		if err != nil {
			evlog.Warn("skipping malformed chunk", "offset", off, "error", err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// Chunk is one parsed 64KiB ElfChnk block: its header plus a shared,
// never-evicted template cache used by every record this chunk yields
// (spec §5).
type Chunk struct {
	data      []byte
	Header    ChunkHeader
	templates bxml.TemplateCache
	empty     bool
}

func newChunk(data []byte) (*Chunk, error) {
	if string(data[0:8]) != chunkSignature {
		if string(data[0:8]) == "\x00\x00\x00\x00\x00\x00\x00\x00" {
			return nil, newErr("empty chunk slot")
		}
		return nil, newErr("bad ElfChnk signature")
	}
	h := ChunkHeader{
		FirstRecordNumber: buf.U64LE(data[8:16]),
		LastRecordNumber:  buf.U64LE(data[16:24]),
		FirstRecordID:     buf.U64LE(data[24:32]),
		LastRecordID:      buf.U64LE(data[32:40]),
		HeaderSize:        buf.U32LE(data[40:44]),
		LastRecordOffset:  buf.U32LE(data[44:48]),
		FreeSpaceOffset:   buf.U32LE(data[48:52]),
		RecordsChecksum:   buf.U32LE(data[52:56]),
		Flags:             buf.U32LE(data[120:124]),
		Checksum:          buf.U32LE(data[124:128]),
	}
	return &Chunk{
		data:      data,
		Header:    h,
		templates: make(bxml.TemplateCache),
		empty:     h.FreeSpaceOffset == chunkFreeSpaceEmpty,
	}, nil
}

// Record is one decoded EVTX_RECORD: its framing fields plus the flattened
// key/value collection bxml produced from its BXML payload.
type Record struct {
	RecordID uint64
	Fields   *bxml.Collection
}

// Records decodes every well-formed record in the chunk, in file order.
// Truncated records (size/size-copy mismatch) end the scan, matching
// ElfChnk.read's behavior of treating a trailer mismatch as "no more
// records" rather than a hard error. Records missing a TimeCreated system
// time are dropped with a warning (spec §4.7, §8): a record with no
// timestamp cannot be meaningfully correlated and is not worth keeping.
func (c *Chunk) Records() []Record {
	var out []Record
	pos := chunkHeaderSize
	for {
		if pos+recordHeaderLen > len(c.data) {
			break
		}
		sig := buf.U32LE(c.data[pos : pos+4])
		if sig != recordSignature {
			break
		}
		size := buf.U32LE(c.data[pos+4 : pos+8])
		if size < recordHeaderLen+4 || pos+int(size) > len(c.data) {
			break
		}
		sizeCopyOffset := pos + int(size) - 4
		sizeCopy := buf.U32LE(c.data[sizeCopyOffset : sizeCopyOffset+4])
		if size != sizeCopy {
			break
		}

		recordID := buf.U64LE(c.data[pos+8 : pos+16])
		payloadOffset := pos + recordHeaderLen
		payload := c.data[payloadOffset:sizeCopyOffset]

		col, err := bxml.DecodeRecord(payload, c.data, payloadOffset, c.templates)
		if err != nil {
			evlog.Warn("skipping malformed record", "recordID", recordID, "error", err)
			pos += int(size)
			continue
		}
		if !hasTimeCreated(col) {
			evlog.Warn("dropping record with no TimeCreated_SystemTime", "recordID", recordID)
			pos += int(size)
			continue
		}

		out = append(out, Record{RecordID: recordID, Fields: col})
		pos += int(size)
	}
	return out
}

// hasTimeCreated reports whether col carries the "TimeCreated_SystemTime"
// key (spec §4.7, §8): System/TimeCreated's SystemTime attribute flattens
// to that name since the path-skip rule drops the leading "System"
// ancestor.
func hasTimeCreated(col *bxml.Collection) bool {
	v, ok := col.Get("TimeCreated_SystemTime")
	return ok && v != nil
}

type fileError struct{ msg string }

func (e *fileError) Error() string { return e.msg }

func newErr(msg string) error {
	return &fileError{msg: msg}
}
