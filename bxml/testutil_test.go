package bxml

// Helpers shared by this package's tests for hand-assembling BXML byte
// streams without pre-computing offsets by hand: every offset/size field is
// derived from the buffer's length at the point it's appended.

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUTF16LE(b []byte, s string) []byte {
	for _, r := range s {
		b = append(b, byte(r), byte(r>>8))
	}
	return b
}

// appendInlineName appends a name reference that resolves inline: the
// offset field (computed to equal the position right after the offset
// field itself) followed by the name record body.
func appendInlineName(b []byte, name string) []byte {
	offset := uint32(len(b) + 4)
	b = appendU32(b, offset)
	b = appendU32(b, 0) // reserved
	b = appendU16(b, 0) // hash
	b = appendU16(b, uint16(len(name)))
	b = appendUTF16LE(b, name)
	b = appendU16(b, 0) // terminator
	return b
}

// appendOpenElement appends an OPEN_START_ELEMENT token with an inline name
// and no attribute list (dependency id and data size fields are zeroed;
// this decoder ignores both).
func appendOpenElement(b []byte, name string) []byte {
	b = append(b, byte(tagOpenStartElement))
	b = appendU16(b, 0) // dependency id
	b = appendU32(b, 0) // data size
	b = appendInlineName(b, name)
	return b
}

func appendFragmentHeader(b []byte) []byte {
	return append(b, byte(tagFragmentHeader), 1, 1, 0)
}

// buildTemplateInstanceRecord assembles a full record byte stream: a
// FRAGMENT_HEADER, a TEMPLATE_INSTANCE whose definition is inline, a single
// root element named elemName whose sole content is a NORMAL_SUBSTITUTION
// at index 0, and a one-entry value array described by (rawType,
// valueBytes).
func buildTemplateInstanceRecord(elemName string, rawType uint8, valueBytes []byte) []byte {
	buf := appendFragmentHeader(nil)
	buf = append(buf, byte(tagTemplateInstance))
	buf = append(buf, 0x01)  // flags
	buf = appendU32(buf, 0) // template instance id

	offsetPos := len(buf)
	offset := uint32(offsetPos + 4)
	buf = appendU32(buf, offset)

	buf = appendU32(buf, 0)                  // chained next-template offset
	buf = append(buf, make([]byte, 16)...)   // guid
	buf = appendU32(buf, 0)                  // template byte size

	buf = appendOpenElement(buf, elemName)
	buf = append(buf, byte(tagCloseStartElement))
	buf = append(buf, byte(tagNormalSubstitution))
	buf = appendU16(buf, 0) // substitution index
	buf = append(buf, rawType)
	buf = append(buf, byte(tagEndElement))

	buf = appendU32(buf, 1) // value count
	buf = appendU16(buf, uint16(len(valueBytes)))
	buf = append(buf, rawType)
	buf = append(buf, 0) // descriptor padding
	buf = append(buf, valueBytes...)
	return buf
}
