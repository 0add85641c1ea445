// Package wevt reads a provider's WEVT_TEMPLATE resource: the CRIM-headed
// database embedded in an event-source DLL that maps channel/task/keyword/
// level/opcode/event IDs to display strings and BXML templates. Templates
// embedded here (the TEMP object) are parsed using bxml's inline name
// resolver, since this format has no chunk-wide name pool (spec §6).
package wevt

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/evtxkit/evtxkit/bxml"
	"github.com/evtxkit/evtxkit/internal/buf"
)

// CRIM is the WEVT_TEMPLATE resource's outer header: a list of
// (providerID, offset) descriptors, one per provider packed into the same
// resource (spec §6, supplemented feature).
type CRIM struct {
	Size      uint32
	Providers []ProviderDescriptor
}

// ProviderDescriptor is one CRIM entry: a provider's GUID and the offset of
// its WEVT header within the resource.
type ProviderDescriptor struct {
	ProviderID string
	Offset     uint32
}

// ParseCRIM parses the database header at the start of data.
func ParseCRIM(data []byte) (*CRIM, error) {
	if len(data) < 16 {
		return nil, newErr("too short for CRIM header")
	}
	if string(data[0:4]) != "CRIM" {
		return nil, newErr("bad CRIM signature")
	}
	size := buf.U32LE(data[4:8])
	count := buf.U32LE(data[12:16])

	crim := &CRIM{Size: size}
	off := 16
	for i := uint32(0); i < count; i++ {
		if off+20 > len(data) {
			return nil, newErr("truncated provider descriptor %d", i)
		}
		id, err := providerGUID(data[off : off+16])
		if err != nil {
			return nil, err
		}
		offset := buf.U32LE(data[off+16 : off+20])
		crim.Providers = append(crim.Providers, ProviderDescriptor{ProviderID: id, Offset: offset})
		off += 20
	}
	return crim, nil
}

func providerGUID(b []byte) (string, error) {
	u, err := uuid.FromBytesLE(b)
	if err != nil {
		return "", newErr("provider guid: %v", err)
	}
	return u.String(), nil
}

// WEVT is one provider's template-database header: a fixed prefix followed
// by a list of (type, offset) entries, each pointing at a WEVT_TYPE block
// within the same provider payload (spec §6).
type WEVT struct {
	data           []byte
	offset         int
	MessageTableID uint32
	Types          []wevtTypeEntry
}

type wevtTypeEntry struct {
	kind   uint32
	offset uint32
}

// ParseWEVT parses the provider header at data[offset:].
func ParseWEVT(data []byte, offset int) (*WEVT, error) {
	if offset < 0 || offset+16 > len(data) {
		return nil, newErr("wevt header out of range")
	}
	h := data[offset:]
	if string(h[0:4]) != "WEVT" {
		return nil, newErr("bad WEVT signature")
	}
	size := buf.U32LE(h[4:8])
	messageTableID := buf.U32LE(h[8:12])
	nrTypes := buf.U32LE(h[12:16])

	w := &WEVT{offset: offset, MessageTableID: messageTableID}
	if offset+int(size) > len(data) {
		return nil, newErr("wevt payload exceeds buffer")
	}
	w.data = data[offset : offset+int(size)]

	pos := 16
	for i := uint32(0); i < nrTypes; i++ {
		if pos+8 > len(h) {
			return nil, newErr("truncated wevt type entry %d", i)
		}
		w.Types = append(w.Types, wevtTypeEntry{
			kind:   buf.U32LE(h[pos : pos+4]),
			offset: buf.U32LE(h[pos+4 : pos+8]),
		})
		pos += 8
	}
	return w, nil
}

// Blocks decodes each referenced WEVT_TYPE block into a typed Go value.
func (w *WEVT) Blocks() ([]any, error) {
	out := make([]any, 0, len(w.Types))
	for _, t := range w.Types {
		rel := int(t.offset) - w.offset
		if rel < 0 || rel+12 > len(w.data) {
			return nil, newErr("wevt type offset out of range")
		}
		block, err := decodeBlock(w.data[rel:], int(t.offset))
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, nil
}

// wevtTypeHeader is the common WEVT_TYPE prefix every block starts with:
// a 4-byte signature, its total byte size, and an item count whose meaning
// is type-specific (spec §6).
type wevtTypeHeader struct {
	signature string
	size      uint32
	nrItems   uint32
}

func parseWevtTypeHeader(data []byte) (wevtTypeHeader, error) {
	if len(data) < 12 {
		return wevtTypeHeader{}, newErr("truncated WEVT_TYPE header")
	}
	return wevtTypeHeader{
		signature: string(data[0:4]),
		size:      buf.U32LE(data[4:8]),
		nrItems:   buf.U32LE(data[8:12]),
	}, nil
}

func decodeBlock(data []byte, absOffset int) (any, error) {
	h, err := parseWevtTypeHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[12:]
	if int(h.size) <= len(data) {
		payload = data[12:h.size]
	}

	itemBase := absOffset + 12 // len(header) + absOffset: where item offsets are measured from

	switch h.signature {
	case "CHAN":
		return decodeNamedItems(h, payload, itemBase, decodeCHAN)
	case "TASK":
		return decodeNamedItems(h, payload, itemBase, decodeTASK)
	case "KEYW":
		return decodeNamedItems(h, payload, itemBase, decodeKEYW)
	case "LEVL":
		return decodeNamedItems(h, payload, itemBase, decodeLEVL)
	case "OPCO":
		return decodeNamedItems(h, payload, itemBase, decodeOPCO)
	case "PRVA":
		return decodeNamedItems(h, payload, itemBase, decodePRVA)
	case "EVNT":
		// EVNT carries an extra 4-byte field before its items (spec
		// supplemented feature, per the original's "_additional_offset").
		if len(payload) >= 4 {
			payload = payload[4:]
			itemBase += 4
		}
		return decodeNamedItems(h, payload, itemBase, decodeEVNT)
	case "TEMP":
		return decodeTEMP(data, absOffset)
	case "MAPS":
		return decodeMAPS(h, payload, absOffset)
	case "TTBL":
		return decodeTTBL(h, payload, absOffset)
	default:
		return nil, newErr("unknown WEVT_TYPE signature %q", h.signature)
	}
}

// MapRef is one VMAP or BMAP bitmask-to-string value map referenced by a
// provider's MAPS block (spec §6, supplemented feature). The original's
// MAPS_WEVT_TYPE stores an array of absolute offsets just past its own
// header, each pointing at a VMAP or BMAP block elsewhere in the payload,
// rather than a fixed-size repeated item like the other WEVT_TYPEs.
type MapRef struct {
	Kind string // "VMAP" or "BMAP"
	Name string
}

func decodeMAPS(h wevtTypeHeader, payload []byte, absOffset int) ([]MapRef, error) {
	base := absOffset + 12 // len(header) + absOffset, per the original's "offset"
	var out []MapRef
	for i := uint32(0); i < h.nrItems; i++ {
		if int(i+1)*4 > len(payload) {
			break
		}
		mapOffset := int(buf.U32LE(payload[i*4 : i*4+4]))
		rel := mapOffset - base
		if rel < 0 || rel+12 > len(payload) {
			continue
		}
		sig := string(payload[rel : rel+4])
		if sig != "VMAP" && sig != "BMAP" {
			continue
		}
		out = append(out, MapRef{Kind: sig, Name: decodeMapName(payload[rel:])})
	}
	return out, nil
}

// decodeMapName reads a VMAP/BMAP's name: its 12-byte header (signature,
// size, data_offset) is immediately followed by a DATA_ITEM (a uint32 byte
// size, then that many bytes of null-terminated UTF-16LE).
func decodeMapName(b []byte) string {
	const header = 12
	if len(b) < header+4 {
		return ""
	}
	itemSize := int(buf.U32LE(b[header : header+4]))
	if itemSize < 4 || header+itemSize > len(b) {
		return ""
	}
	nameBytes := b[header+4 : header+itemSize]
	return decodeUTF16LEZ(nameBytes)
}

// decodeTTBL loads a sequence of TEMP objects back-to-back, each one's own
// .size field giving the offset to the next (spec §6, supplemented
// feature): unlike the other WEVT_TYPEs, TTBL's items are not fixed-width.
func decodeTTBL(h wevtTypeHeader, payload []byte, absOffset int) ([]*Template, error) {
	var out []*Template
	off := 0
	for i := uint32(0); i < h.nrItems; i++ {
		if off+tempHeaderLen > len(payload) {
			break
		}
		itemAbs := absOffset + 12 + off
		t, err := decodeTEMP(payload[off:], itemAbs)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		size := int(buf.U32LE(payload[off+4 : off+8]))
		if size <= 0 {
			break
		}
		off += size
	}
	return out, nil
}

// Named is a provider metadata item that carries a display name resolved
// from the message-string table by its data offset.
type Named struct {
	Kind           string
	ID             uint32
	MessageTableID uint32
	Name           string
	MuiID          string // TASK only; little-endian (bytes_le) GUID, unlike bxml's big-endian GUID values
}

func decodeNamedItems(h wevtTypeHeader, payload []byte, itemBase int, decode func([]byte, int) (Named, int)) ([]Named, error) {
	var out []Named
	off := 0
	for i := uint32(0); i < h.nrItems; i++ {
		if off >= len(payload) {
			break
		}
		item, consumed := decode(payload[off:], itemBase+off)
		if consumed <= 0 {
			break
		}
		out = append(out, item)
		off += consumed
	}
	return out, nil
}

// resolveItemName converts dataOffset (absolute within the provider
// payload, per the struct's own data_offset field) into the DATA_ITEM name
// that follows the item's own header, matching WevtObject's
// `data_offset - data_start` conversion.
func resolveItemName(b []byte, itemAbsOffset, headerLen int, dataOffset uint32) string {
	dataStart := itemAbsOffset + headerLen
	rel := int(dataOffset) - dataStart
	if rel < 0 || rel+4 > len(b)-headerLen {
		return ""
	}
	data := b[headerLen:]
	itemSize := int(buf.U32LE(data[rel : rel+4]))
	if itemSize < 4 || rel+itemSize > len(data) {
		return ""
	}
	return decodeUTF16LEZ(data[rel+4 : rel+itemSize])
}

func decodeCHAN(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 16 {
		return Named{}, 0
	}
	name := resolveItemName(b, itemAbsOffset, 16, buf.U32LE(b[4:8]))
	return Named{Kind: "CHAN", ID: buf.U32LE(b[0:4]), MessageTableID: buf.U32LE(b[12:16]), Name: name}, 16
}

func decodeTASK(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 28 {
		return Named{}, 0
	}
	muiID := ""
	if u, err := uuid.FromBytesLE(b[8:24]); err == nil {
		muiID = u.String()
	}
	name := resolveItemName(b, itemAbsOffset, 28, buf.U32LE(b[24:28]))
	return Named{Kind: "TASK", ID: buf.U32LE(b[0:4]), MessageTableID: buf.U32LE(b[4:8]), MuiID: muiID, Name: name}, 28
}

func decodeKEYW(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 16 {
		return Named{}, 0
	}
	name := resolveItemName(b, itemAbsOffset, 16, buf.U32LE(b[12:16]))
	return Named{Kind: "KEYW", MessageTableID: buf.U32LE(b[8:12]), Name: name}, 16
}

func decodeLEVL(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 12 {
		return Named{}, 0
	}
	name := resolveItemName(b, itemAbsOffset, 12, buf.U32LE(b[8:12]))
	return Named{Kind: "LEVL", ID: buf.U32LE(b[0:4]), MessageTableID: buf.U32LE(b[4:8]), Name: name}, 12
}

func decodeOPCO(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 12 {
		return Named{}, 0
	}
	name := resolveItemName(b, itemAbsOffset, 12, buf.U32LE(b[8:12]))
	return Named{Kind: "OPCO", MessageTableID: buf.U32LE(b[4:8]), Name: name}, 12
}

func decodePRVA(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 8 {
		return Named{}, 0
	}
	return Named{Kind: "PRVA"}, 8
}

func decodeEVNT(b []byte, itemAbsOffset int) (Named, int) {
	if len(b) < 48 {
		return Named{}, 0
	}
	return Named{Kind: "EVNT", ID: uint32(buf.U16LE(b[0:2]))}, 48
}

// Template is a provider's named BXML template: the parsed element tree
// plus the identifier GUID event descriptors reference it by.
type Template struct {
	Identifier string
	Template   *bxml.Template
}

// temp header: signature(4) size(4) nr_of_items(4) nr_of_names(4)
// data_offset(4) binxml_fragments(4) identifier(16) = 40 bytes.
const tempHeaderLen = 40

func decodeTEMP(data []byte, absOffset int) (*Template, error) {
	if len(data) < tempHeaderLen {
		return nil, newErr("truncated TEMP header")
	}
	absDataOffset := int(buf.U32LE(data[16:20]))
	identifierBytes := data[24:40]
	id, err := uuid.FromBytesLE(identifierBytes)
	if err != nil {
		return nil, newErr("temp identifier: %v", err)
	}

	// header.data_offset is absolute within the provider payload; the
	// BXML template occupies the bytes of the object's own data segment
	// up to that point, relative to where the data segment starts.
	dataStart := absOffset + tempHeaderLen
	relDataOffset := absDataOffset - dataStart
	if relDataOffset < 0 || tempHeaderLen+relDataOffset > len(data) {
		return nil, newErr("temp data_offset out of range")
	}
	bxmlBytes := data[tempHeaderLen : tempHeaderLen+relDataOffset]

	sess := bxml.NewInlineSession(bxmlBytes)
	tmpl, err := sess.ParseTemplate()
	if err != nil {
		return nil, wrapErr(err, "parse TEMP bxml template")
	}
	tmpl.GUID = fmt.Sprintf("{%s}", id)

	return &Template{Identifier: tmpl.GUID, Template: tmpl}, nil
}
