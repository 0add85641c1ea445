package bxml

// tokenTag identifies a BXML token's shape (spec §4.3). Each token byte
// packs a 5-bit tag in the low bits and a set of flag bits in the high
// nibble; bit 0x40 ("more data follows") marks OpenStartElement tokens that
// carry an attribute list.
type tokenTag uint8

const (
	tagEndOfStream        tokenTag = 0x00
	tagOpenStartElement   tokenTag = 0x01
	tagCloseStartElement  tokenTag = 0x02
	tagCloseEmptyElement  tokenTag = 0x03
	tagEndElement         tokenTag = 0x04
	tagValue              tokenTag = 0x05
	tagAttribute          tokenTag = 0x06
	tagCDataSection       tokenTag = 0x07
	tagCharRef            tokenTag = 0x08
	tagEntityRef          tokenTag = 0x09
	tagPITarget           tokenTag = 0x0A
	tagPIData             tokenTag = 0x0B
	tagTemplateInstance   tokenTag = 0x0C
	tagNormalSubstitution tokenTag = 0x0D
	tagOptSubstitution    tokenTag = 0x0E
	tagFragmentHeader     tokenTag = 0x0F

	tagMask      = 0x1F
	flagMoreData = 0x40
)

func splitTokenByte(b uint8) (tag tokenTag, hasMore bool) {
	return tokenTag(b & tagMask), b&flagMoreData != 0
}

// Placeholder is an unresolved NORMAL_SUB or OPTIONAL_SUB token: a reference
// into the record's value array, bound to a concrete value at decode time
// (spec §4.4). Optional substitutions whose index falls outside the value
// array are dropped rather than treated as an error (spec §4.5).
type Placeholder struct {
	Index    uint16
	Type     ValueType
	Optional bool
}

func readSubstitution(c *cursor, optional bool) (*Placeholder, error) {
	index, err := c.u16()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "substitution index")
	}
	rawType, err := c.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "substitution type")
	}
	return &Placeholder{Index: index, Type: ValueType(rawType), Optional: optional}, nil
}

func readValueToken(c *cursor) (any, error) {
	rawType, err := c.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "value token type")
	}
	t := ValueType(rawType)
	var data []byte
	switch t {
	case ValueString, ValueAnsiString, ValueBinXml:
		length, err := c.u16()
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value token length")
		}
		data, err = c.take(int(length))
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value token data")
		}
	default:
		w := fixedWidth(t)
		if w == 0 {
			return nil, newErr(ErrKindBxml, "value token: unsupported inline type 0x%02x", t)
		}
		data, err = c.take(w)
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "value token data")
		}
	}
	return readScalar(t, data)
}

// readTokenValue reads either a VALUE token or a substitution token,
// whichever tag is next -- the shape ATTRIBUTE values and element text
// content share (spec §4.3). The result is either a concrete decoded value
// or a *Placeholder awaiting binding.
func readTokenValue(c *cursor) (any, error) {
	tagByte, err := c.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "token value tag")
	}
	tag, _ := splitTokenByte(tagByte)
	switch tag {
	case tagValue:
		return readValueToken(c)
	case tagNormalSubstitution, tagOptSubstitution:
		return readSubstitution(c, tag == tagOptSubstitution)
	default:
		return nil, newErr(ErrKindBxml, "expected value or substitution token, got tag 0x%02x", tag)
	}
}

func readAttribute(c *cursor, names NameResolver) (Attr, error) {
	name, err := names.Read(c)
	if err != nil {
		return Attr{}, err
	}
	val, err := readTokenValue(c)
	if err != nil {
		return Attr{}, err
	}
	return Attr{Name: name, Value: val}, nil
}
