package bxml

import (
	"github.com/evtxkit/evtxkit/internal/buf"
)

// cursor is a forward-reading view over a byte slice with an independently
// positionable offset, used for both the record substream and the
// chunk-wide name look-aside stream (spec §5: "streams must support
// independent absolute positioning").
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) tell() int { return c.pos }

func (c *cursor) len() int { return len(c.data) }

// seek repositions the cursor to an absolute offset within data.
func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return newErr(ErrKindBxml, "seek out of range: %d (len %d)", pos, len(c.data))
	}
	c.pos = pos
	return nil
}

// take returns the next n bytes and advances the cursor, or a BxmlError if
// fewer than n bytes remain.
func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.data) {
		return nil, newErr(ErrKindBxml, "truncated read: need %d bytes at %d, have %d", n, c.pos, len(c.data))
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return buf.U16LE(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return buf.U32LE(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return buf.U64LE(b), nil
}
