package bxml

import "github.com/cespare/xxhash/v2"

// TemplateCache maps a chunk-absolute byte offset to its parsed Template.
// One cache instance is shared by every record in a chunk and never evicted
// or shared across chunks (spec §5): the chunk is the cache's lifetime.
type TemplateCache map[int]*Template

// Session drives one record's (or one provider-template's) BXML decode: it
// owns the record-relative cursor, the optional chunk-wide name/template
// look-aside stream, and the name resolution strategy (spec §5, §6).
type Session struct {
	rec        *cursor
	chunk      *cursor
	names      NameResolver
	templates  TemplateCache
	dataOffset int // the record's own absolute offset within chunk (spec §6(c))
}

// NewRecordSession builds a Session for one EVTX record: recordData is
// the record's own BXML byte range, chunk is the enclosing chunk's full
// byte range for resolving back-referenced names (nil when there is no
// enclosing chunk; a name back-reference then fails), dataOffset is recordData's
// absolute byte offset within chunk (spec §6(c): every stored name/template
// offset is chunk-absolute, while the record cursor itself starts at 0), and
// cache is the chunk-wide template cache (spec §5).
func NewRecordSession(recordData []byte, chunk []byte, dataOffset int, cache TemplateCache) *Session {
	var chunkCur *cursor
	if chunk != nil {
		chunkCur = newCursor(chunk)
	}
	if cache == nil {
		cache = make(TemplateCache)
	}
	return &Session{
		rec:        newCursor(recordData),
		chunk:      chunkCur,
		names:      newChunkRelativeResolver(chunkCur, dataOffset),
		templates:  cache,
		dataOffset: dataOffset,
	}
}

// NewInlineSession builds a Session for standalone BXML with no chunk
// back-reference pool, such as a provider-template database's embedded TEMP
// object (spec §6).
func NewInlineSession(data []byte) *Session {
	return &Session{
		rec:   newCursor(data),
		names: newInlineResolver(),
	}
}

// ParseTemplate parses a bare element tree (no FRAGMENT_HEADER, no
// TEMPLATE_INSTANCE wrapper) starting at the session's current position,
// such as a provider-template database's TEMP payload. The returned
// Template's Offset is left at 0; callers that need a cache key set it
// themselves.
func (s *Session) ParseTemplate() (*Template, error) {
	defStart := s.rec.tell()
	tagByte, err := s.rec.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "template root tag")
	}
	tag, hasMore := splitTokenByte(tagByte)
	if tag != tagOpenStartElement {
		return nil, newErr(ErrKindBxml, "template root: expected OPEN_START_ELEMENT, got 0x%02x", tag)
	}
	root, err := parseElementTree(s.rec, s.names, hasMore)
	if err != nil {
		return nil, err
	}
	defEnd := s.rec.tell()
	return &Template{
		Root:      root,
		NameIndex: buildNameIndex(root),
		Checksum:  xxhash.Sum64(s.rec.data[defStart:defEnd]),
	}, nil
}

// readFragmentHeader consumes the FRAGMENT_HEADER token's tag byte and its
// 3-byte (major, minor, flags) body (spec §4.3).
func readFragmentHeader(c *cursor) error {
	tagByte, err := c.u8()
	if err != nil {
		return wrapErr(ErrKindBxml, err, "fragment header tag")
	}
	tag, _ := splitTokenByte(tagByte)
	if tag != tagFragmentHeader {
		return newErr(ErrKindBxml, "expected FRAGMENT_HEADER, got tag 0x%02x", tag)
	}
	if _, err := c.take(3); err != nil {
		return wrapErr(ErrKindBxml, err, "fragment header body")
	}
	return nil
}

// resolveOrParseTemplate implements the TEMPLATE_INSTANCE definition/
// reference split (spec §4.4, §4.5): when the instance's offset equals the
// position the definition would be inline, the template body follows
// immediately and is parsed (consuming it) and cached, unless a definition
// is already cached at that offset, in which case the cached one is kept and
// returned; otherwise the offset must already be a cached definition (parsed
// earlier in this chunk).
func (s *Session) resolveOrParseTemplate(offset uint32, inlineHere bool) (*Template, error) {
	cached, isCached := s.templates[int(offset)]
	if !inlineHere {
		if isCached {
			return cached, nil
		}
		return nil, newErr(ErrKindMalformedChunk, "template reference to unparsed offset %d", offset)
	}

	defStart := s.rec.tell()
	nextOffsetField, err := s.rec.u32() // chained next-template offset, unused here
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "template next-offset field")
	}
	_ = nextOffsetField
	guidBytes, err := s.rec.take(16)
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "template guid")
	}
	guid, err := readGUID(guidBytes)
	if err != nil {
		return nil, err
	}
	if _, err := s.rec.u32(); err != nil { // template byte size, unused: we trust token framing
		return nil, wrapErr(ErrKindBxml, err, "template size")
	}

	tagByte, err := s.rec.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "template root tag")
	}
	tag, hasMore := splitTokenByte(tagByte)
	if tag != tagOpenStartElement {
		return nil, newErr(ErrKindBxml, "template body: expected OPEN_START_ELEMENT, got 0x%02x", tag)
	}
	root, err := parseElementTree(s.rec, s.names, hasMore)
	if err != nil {
		return nil, err
	}

	defEnd := s.rec.tell()
	if isCached {
		return cached, nil
	}
	t := &Template{
		Offset:    int(offset),
		GUID:      guid,
		Root:      root,
		NameIndex: buildNameIndex(root),
		Checksum:  xxhash.Sum64(s.rec.data[defStart:defEnd]),
	}
	s.templates[int(offset)] = t
	return t, nil
}

// valueDescriptor is one entry of a TEMPLATE_INSTANCE's value-array header
// (spec §4.1, §4.5 step 4): a declared byte width and type tag, read before
// the value bytes themselves.
type valueDescriptor struct {
	size    uint16
	rawType uint8
}

func readValueDescriptors(c *cursor, count uint32) ([]valueDescriptor, error) {
	out := make([]valueDescriptor, count)
	for i := range out {
		size, err := c.u16()
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value descriptor size")
		}
		rawType, err := c.u8()
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value descriptor type")
		}
		if _, err := c.u8(); err != nil { // reserved/padding byte
			return nil, wrapErr(ErrKindBxml, err, "value descriptor padding")
		}
		out[i] = valueDescriptor{size: size, rawType: rawType}
	}
	return out, nil
}

// boundValue is one entry of a record instance's decoded value array: the
// concrete value, or a recorded decode failure absorbed per spec §4.5 step 4
// into the "<CORRUPT DATA>" sentinel the binder substitutes.
type boundValue struct {
	desc valueDescriptor
	val  any
	err  error
}

// readValueArray reads the value bytes following a descriptor array,
// decoding each per its own descriptor. A BINXML-typed entry (0x21) holds a
// nested BXML fragment: a FRAGMENT_HEADER followed by a bare element tree,
// parsed recursively with ParseTemplate and recorded as a child template
// (spec §3 Template.Children, §4.5). A nested fragment that starts with
// anything other than that (such as a TEMPLATE_INSTANCE) is not decoded and
// becomes a per-value decode failure.
func (s *Session) readValueArray(descs []valueDescriptor, parent *Template) ([]boundValue, error) {
	out := make([]boundValue, len(descs))
	for i, d := range descs {
		valueStart := s.rec.tell()
		data, err := s.rec.take(int(d.size))
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value array entry %d", i)
		}
		if descriptorType(d.rawType) == ValueBinXml {
			sub := newCursor(data)
			subSession := &Session{
				rec:        sub,
				chunk:      s.chunk,
				names:      s.names,
				templates:  s.templates,
				dataOffset: s.dataOffset + valueStart,
			}
			if err := readFragmentHeader(sub); err != nil {
				out[i] = boundValue{desc: d, err: err}
				continue
			}
			child, err := subSession.ParseTemplate()
			if err != nil {
				out[i] = boundValue{desc: d, err: err}
				continue
			}
			if parent != nil {
				parent.Children = append(parent.Children, child)
			}
			out[i] = boundValue{desc: d, val: child}
			continue
		}
		v, err := ReadValue(d.rawType, descriptorIsArray(d.rawType), data)
		out[i] = boundValue{desc: d, val: v, err: err}
	}
	return out, nil
}
