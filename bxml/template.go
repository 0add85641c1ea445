package bxml

import "strings"

// Attr is a single element attribute: a name plus either a concrete decoded
// value or an unresolved *Placeholder (spec §3, §4.4).
type Attr struct {
	Name  string
	Value any
}

// Element is one node of the parsed BXML element tree (spec §3). Children
// holds, in document order, any mix of *Element, *Placeholder, and concrete
// decoded scalar values (text content).
type Element struct {
	Name     string
	Attrs    []Attr
	Children []any
}

// Template is a parsed, cacheable BXML template: its element tree plus a
// name index and definition fingerprint (spec §3, §4.4).
type Template struct {
	// Offset is the chunk-absolute byte offset this template was parsed
	// from, the template cache key (spec §4.4, §5).
	Offset int
	GUID   string
	Root   *Element

	// Checksum fingerprints the template definition bytes (xxhash64). The
	// template cache is looked up by offset only and does not compare
	// checksums; the value is kept on the Template for callers to compare.
	Checksum uint64

	// NameIndex maps every distinct element/attribute name encountered, in
	// pre-order, to a sequential id. flattenFull does not read it.
	NameIndex map[string]int

	// Children lists every nested BINXML sub-template encountered while
	// parsing this template's value-bearing descendants. Populated for data-
	// model completeness (spec §3); full flattening recurses into nested
	// templates inline rather than walking this list a second time, since
	// the nested template is already reachable from Root through the bound
	// substitution value (see flattenFull).
	Children []*Template
}

// parseElementTree reads one OPEN_START_ELEMENT token (the tag byte must
// already be consumed; hasAttrList is its 0x40 flag) and everything nested
// beneath it, implementing the element state machine of spec §4.6.
func parseElementTree(c *cursor, names NameResolver, hasAttrList bool) (*Element, error) {
	if _, err := c.u16(); err != nil { // dependency id, unused by this decoder
		return nil, wrapErr(ErrKindBxml, err, "element dependency id")
	}
	if _, err := c.u32(); err != nil { // data size, unused: we trust token framing
		return nil, wrapErr(ErrKindBxml, err, "element data size")
	}
	name, err := names.Read(c)
	if err != nil {
		return nil, err
	}
	el := &Element{Name: name}

	if hasAttrList {
		if _, err := c.u32(); err != nil { // attribute list byte size, unused
			return nil, wrapErr(ErrKindBxml, err, "attribute list size")
		}
		for {
			tagByte, err := c.u8()
			if err != nil {
				return nil, wrapErr(ErrKindBxml, err, "attribute list tag")
			}
			tag, _ := splitTokenByte(tagByte)
			if tag != tagAttribute {
				// Rewind: this tag belongs to the CLOSE_START/CLOSE_EMPTY
				// dispatch below.
				c.pos--
				break
			}
			a, err := readAttribute(c, names)
			if err != nil {
				return nil, err
			}
			el.Attrs = append(el.Attrs, a)
		}
	}

	tagByte, err := c.u8()
	if err != nil {
		return nil, wrapErr(ErrKindBxml, err, "close tag")
	}
	tag, _ := splitTokenByte(tagByte)
	switch tag {
	case tagCloseEmptyElement:
		return el, nil
	case tagCloseStartElement:
		children, err := parseNodes(c, names)
		if err != nil {
			return nil, err
		}
		el.Children = children
		return el, nil
	default:
		return nil, newErr(ErrKindBxml, "expected CLOSE_START or CLOSE_EMPTY, got tag 0x%02x", tag)
	}
}

// parseNodes reads a sequence of child nodes until an END_ELEMENT token,
// which it consumes and does not include in the result (spec §4.6).
func parseNodes(c *cursor, names NameResolver) ([]any, error) {
	var out []any
	for {
		tagByte, err := c.u8()
		if err != nil {
			return nil, wrapErr(ErrKindBxml, err, "child node tag")
		}
		tag, hasMore := splitTokenByte(tagByte)
		switch tag {
		case tagEndElement:
			return out, nil
		case tagOpenStartElement:
			child, err := parseElementTree(c, names, hasMore)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		case tagValue:
			v, err := readValueToken(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		case tagNormalSubstitution, tagOptSubstitution:
			ph, err := readSubstitution(c, tag == tagOptSubstitution)
			if err != nil {
				return nil, err
			}
			out = append(out, ph)
		case tagCDataSection:
			length, err := c.u16()
			if err != nil {
				return nil, wrapErr(ErrKindBxml, err, "cdata length")
			}
			data, err := c.take(int(length))
			if err != nil {
				return nil, wrapErr(ErrKindBxml, err, "cdata data")
			}
			text, err := decodeUTF16LE(data)
			if err != nil {
				return nil, wrapErr(ErrKindValueDecode, err, "cdata decode")
			}
			out = append(out, text)
		case tagCharRef, tagEntityRef:
			name, err := names.Read(c)
			if err != nil {
				return nil, err
			}
			if tag == tagCharRef {
				out = append(out, "&#"+name+";")
			} else {
				out = append(out, "&"+name+";")
			}
		case tagPITarget, tagPIData:
			// Processing instructions carry no event data; skip their name
			// reference (PITarget) or inline string (PIData) and continue.
			if tag == tagPITarget {
				if _, err := names.Read(c); err != nil {
					return nil, err
				}
			} else {
				length, err := c.u16()
				if err != nil {
					return nil, wrapErr(ErrKindBxml, err, "pi data length")
				}
				if _, err := c.take(int(length)); err != nil {
					return nil, wrapErr(ErrKindBxml, err, "pi data")
				}
			}
		default:
			return nil, newErr(ErrKindBxml, "unexpected tag 0x%02x in element content", tag)
		}
	}
}

// buildNameIndex assigns a sequential id to every distinct element and
// attribute name reachable from root, in pre-order.
func buildNameIndex(root *Element) map[string]int {
	idx := make(map[string]int)
	next := 0
	var walk func(el *Element)
	walk = func(el *Element) {
		if _, ok := idx[el.Name]; !ok {
			idx[el.Name] = next
			next++
		}
		for _, a := range el.Attrs {
			if _, ok := idx[a.Name]; !ok {
				idx[a.Name] = next
				next++
			}
		}
		for _, child := range el.Children {
			if ce, ok := child.(*Element); ok {
				walk(ce)
			}
		}
	}
	walk(root)
	return idx
}

// binder resolves a placeholder to its bound value for one record instance.
// Returned errors are decode failures the caller has already absorbed into
// a "<CORRUPT DATA>" sentinel (spec §4.5); binder itself never needs to
// signal a hard failure up through flattening.
type binder func(ph *Placeholder) (any, bool)

// flattenFull walks the element tree into a single Collection using
// path-based keys, skipping the first two ancestors (the document root and
// its immediate child, typically Event/System or Event/EventData) per spec
// §4.4. A <Data Name="X"> child's own name is replaced by the value of its
// Name attribute. Nested templates (reached through a bound BINXML
// substitution) are flattened inline, using the same path, matching the
// ground-truth traversal rather than a second top-level merge pass.
func flattenFull(root *Element, bind binder) *Collection {
	col := NewCollection()
	flattenElement(col, root, nil, bind)
	return col
}

func flattenElement(col *Collection, el *Element, ancestors []string, bind binder) {
	name := el.Name
	if override, ok := dataNameOverride(el, bind); ok {
		name = override
	}
	chain := append(append([]string{}, ancestors...), name)
	baseKey := pathKey(chain)

	for _, a := range el.Attrs {
		val, ok := resolveAny(a.Value, bind)
		if !ok {
			continue
		}
		col.Insert(attrKey(baseKey, a.Name), val)
	}

	hasElementChild := false
	for _, child := range el.Children {
		switch c := child.(type) {
		case *Element:
			hasElementChild = true
			flattenElement(col, c, chain, bind)
		case *Template:
			hasElementChild = true
			flattenElement(col, c.Root, chain, bind)
		}
	}
	if hasElementChild {
		return
	}

	if val, ok := collectLeafValue(el.Children, bind); ok {
		if nested, isTmpl := val.(*Template); isTmpl && nested.Root != nil {
			flattenElement(col, nested.Root, chain, bind)
			return
		}
		col.Insert(baseKey, val)
	}
}

// dataNameOverride implements the <Data Name="X">value</Data> convention
// common to EventData payloads: the element's effective key is its own
// Name attribute's value, not the literal tag name "Data" (spec §4.4).
func dataNameOverride(el *Element, bind binder) (string, bool) {
	if el.Name != "Data" {
		return "", false
	}
	for _, a := range el.Attrs {
		if a.Name != "Name" {
			continue
		}
		v, ok := resolveAny(a.Value, bind)
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		return s, true
	}
	return "", false
}

func pathKey(chain []string) string {
	if len(chain) <= 2 {
		return strings.Join(chain, "_")
	}
	return strings.Join(chain[2:], "_")
}

func attrKey(baseKey, attrName string) string {
	if baseKey == "" {
		return attrName
	}
	return baseKey + "_" + attrName
}

// collectLeafValue resolves an element's non-element children (literal
// values and placeholders) into the single value stored for that element's
// key. Multiple text fragments concatenate; no children yields (nil, false)
// so an empty element contributes no entry.
func collectLeafValue(children []any, bind binder) (any, bool) {
	var parts []any
	for _, child := range children {
		if v, ok := resolveAny(child, bind); ok {
			parts = append(parts, v)
		}
	}
	switch len(parts) {
	case 0:
		return nil, false
	case 1:
		return parts[0], true
	default:
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(toText(p))
		}
		return b.String(), true
	}
}

func resolveAny(v any, bind binder) (any, bool) {
	if ph, ok := v.(*Placeholder); ok {
		return bind(ph)
	}
	return v, true
}

func toText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
