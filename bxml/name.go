package bxml

// A NameResolver reads an element/attribute name reference from a token
// stream and returns its decoded text (spec §4.2). Two strategies exist: one
// resolves chunk-relative back-references shared across a chunk's records,
// the other reads the name inline every time (used when traversing a
// provider-template database with no enclosing chunk, spec §6).
type NameResolver interface {
	// Read consumes a name reference from rec at its current position and
	// returns the decoded name.
	Read(rec *cursor) (string, error)
}

// chunkRelativeResolver implements the EVTX per-chunk name back-reference
// scheme: a u32 absolute chunk offset, immediately followed either by the
// full name record (first occurrence) or nothing further (a pure
// back-reference to a name already materialized elsewhere in the chunk).
type chunkRelativeResolver struct {
	chunk      *cursor
	dataOffset int
}

// newChunkRelativeResolver builds a resolver for a record whose BXML payload
// begins at dataOffset within chunk (spec §6(c)): the inline/back-reference
// self-check compares the stored offset against dataOffset plus the record
// cursor's own position, not the record-relative position alone (the
// original's `data_offset + bxml_stream.tell()`, bxml.py:356).
func newChunkRelativeResolver(chunk *cursor, dataOffset int) *chunkRelativeResolver {
	return &chunkRelativeResolver{chunk: chunk, dataOffset: dataOffset}
}

// Read implements NameResolver. A name reference is:
//
//	offset   uint32  absolute offset of the name record within the chunk
//
// If offset equals dataOffset plus the record cursor's current position, the
// name record is inline and follows immediately; otherwise the name record
// already exists at that offset and is fetched by seeking the chunk stream
// there and back.
func (r *chunkRelativeResolver) Read(rec *cursor) (string, error) {
	offset, err := rec.u32()
	if err != nil {
		return "", wrapErr(ErrKindBxml, err, "name reference offset")
	}

	if int(offset) == r.dataOffset+rec.tell() {
		name, consumed, err := readNameRecord(rec)
		if err != nil {
			return "", err
		}
		_ = consumed
		return name, nil
	}

	if r.chunk == nil {
		return "", newErr(ErrKindBxml, "name back-reference at %d but no chunk stream available", offset)
	}

	saved := r.chunk.tell()
	if err := r.chunk.seek(int(offset)); err != nil {
		return "", wrapErr(ErrKindBxml, err, "name back-reference seek")
	}
	name, _, err := readNameRecord(r.chunk)
	r.chunk.seek(saved) //nolint:errcheck // restoring a previously valid position
	if err != nil {
		return "", err
	}
	return name, nil
}

// inlineResolver reads a name record inline with no back-reference
// indirection, used by the provider-template (WEVT) BXML traversal where
// there is no chunk-wide name pool (spec §6).
type inlineResolver struct{}

func newInlineResolver() *inlineResolver { return &inlineResolver{} }

func (inlineResolver) Read(rec *cursor) (string, error) {
	name, _, err := readNameRecord(rec)
	return name, err
}

// readNameRecord reads the shared name-record layout:
//
//	unused    uint32  reserved / next-name-offset in the chunk pool
//	hash      uint16  name hash, unused by this decoder
//	length    uint16  character count, excluding the NUL terminator
//	chars     []byte  length*2 bytes of UTF-16LE
//	terminator uint16 NUL padding
//
// and returns the decoded name plus the total bytes consumed.
func readNameRecord(c *cursor) (string, int, error) {
	start := c.tell()
	if _, err := c.u32(); err != nil {
		return "", 0, wrapErr(ErrKindBxml, err, "name record reserved field")
	}
	if _, err := c.u16(); err != nil {
		return "", 0, wrapErr(ErrKindBxml, err, "name record hash")
	}
	length, err := c.u16()
	if err != nil {
		return "", 0, wrapErr(ErrKindBxml, err, "name record length")
	}
	chars, err := c.take(int(length) * 2)
	if err != nil {
		return "", 0, wrapErr(ErrKindBxml, err, "name record characters")
	}
	name, err := decodeUTF16LE(chars)
	if err != nil {
		return "", 0, wrapErr(ErrKindValueDecode, err, "name record decode")
	}
	if _, err := c.u16(); err != nil {
		return "", 0, wrapErr(ErrKindBxml, err, "name record terminator")
	}
	return name, c.tell() - start, nil
}
