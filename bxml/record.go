package bxml

import "github.com/evtxkit/evtxkit/internal/evlog"

// DecodeRecord decodes one record's BXML byte range into a flattened
// Collection (spec §4.5, §6). chunk is the enclosing chunk's full bytes for
// name back-references (nil when there is no enclosing chunk),
// dataOffset is recordData's absolute byte offset within chunk (spec
// §6(c)), and cache is the chunk-wide template cache, shared across every
// record in the same chunk and never evicted (spec §5).
func DecodeRecord(recordData []byte, chunk []byte, dataOffset int, cache TemplateCache) (*Collection, error) {
	s := NewRecordSession(recordData, chunk, dataOffset, cache)
	return s.decodeTopLevel()
}

// decodeTopLevel implements the record entry point's dispatch (spec §4.6):
// a FRAGMENT_HEADER always leads, followed by either a TEMPLATE_INSTANCE (the
// common case) or a bare element tree with no substitutions.
func (s *Session) decodeTopLevel() (*Collection, error) {
	if err := readFragmentHeader(s.rec); err != nil {
		return nil, err
	}

	tagByte, err := s.rec.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "top-level tag")
	}
	tag, hasMore := splitTokenByte(tagByte)

	switch tag {
	case tagTemplateInstance:
		col, err := s.decodeTemplateInstance()
		if err != nil {
			return nil, err
		}
		s.swallowTrailingEnd()
		return col, nil
	case tagOpenStartElement:
		root, err := parseElementTree(s.rec, s.names, hasMore)
		if err != nil {
			return nil, err
		}
		return flattenFull(root, noPlaceholders), nil
	default:
		return nil, newErr(ErrKindBxml, "unexpected top-level tag 0x%02x", tag)
	}
}

func noPlaceholders(*Placeholder) (any, bool) { return nil, false }

// decodeTemplateInstance implements spec §4.5's per-record binding: resolve
// or parse the referenced template, read the value-descriptor array and the
// value bytes it describes, then flatten the template tree with those
// values bound to their placeholders.
func (s *Session) decodeTemplateInstance() (*Collection, error) {
	if _, err := s.rec.u8(); err != nil { // unknown/flags byte, unused
		return nil, wrapErr(ErrKindBxml, err, "template instance flags")
	}
	if _, err := s.rec.u32(); err != nil { // template instance id, unused
		return nil, wrapErr(ErrKindBxml, err, "template instance id")
	}
	offset, err := s.rec.u32()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "template instance offset")
	}
	inlineHere := int(offset) == s.dataOffset+s.rec.tell()

	tmpl, err := s.resolveOrParseTemplate(offset, inlineHere)
	if err != nil {
		return nil, err
	}

	count, err := s.rec.u32()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "value count")
	}
	descs, err := readValueDescriptors(s.rec, count)
	if err != nil {
		return nil, err
	}
	values, err := s.readValueArray(descs, tmpl)
	if err != nil {
		return nil, err
	}

	return flattenFull(tmpl.Root, bindValueArray(values)), nil
}

// bindValueArray builds the binder a single record instance uses to resolve
// placeholders against its decoded value array (spec §4.5 step 4): an
// out-of-range optional substitution is dropped, an out-of-range required
// one and any per-value decode failure are absorbed into "<CORRUPT DATA>"
// rather than failing the whole record.
func bindValueArray(values []boundValue) binder {
	return func(ph *Placeholder) (any, bool) {
		idx := int(ph.Index)
		if idx < 0 || idx >= len(values) {
			if ph.Optional {
				return nil, false
			}
			evlog.Warn("substitution index out of range", "index", idx, "values", len(values))
			return "<CORRUPT DATA>", true
		}
		bv := values[idx]
		if bv.err != nil {
			evlog.Warn("value decode failed, substituting corrupt marker", "error", bv.err)
			return "<CORRUPT DATA>", true
		}
		return bv.val, true
	}
}

// swallowTrailingEnd discards a stray END_ELEMENT/EOF token some producers
// emit after the top-level TEMPLATE_INSTANCE (spec §9 open question:
// resolved here by ignoring it rather than treating it as malformed).
func (s *Session) swallowTrailingEnd() {
	if s.rec.tell() >= s.rec.len() {
		return
	}
	pos := s.rec.tell()
	tagByte, err := s.rec.u8()
	if err != nil {
		return
	}
	tag, _ := splitTokenByte(tagByte)
	if tag != tagEndElement && tag != tagEndOfStream {
		_ = s.rec.seek(pos)
	}
}
