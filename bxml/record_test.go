package bxml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRecordBareEmptyElement(t *testing.T) {
	buf := appendFragmentHeader(nil)
	buf = appendOpenElement(buf, "Root")
	buf = append(buf, byte(tagCloseEmptyElement))

	col, err := DecodeRecord(buf, nil, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 0, col.Len())
}

func TestDecodeRecordBareElementWithText(t *testing.T) {
	buf := appendFragmentHeader(nil)
	buf = appendOpenElement(buf, "Root")
	buf = append(buf, byte(tagCloseStartElement))
	buf = append(buf, byte(tagValue))
	buf = append(buf, byte(ValueString))
	text := appendUTF16LE(nil, "hi")
	buf = appendU16(buf, uint16(len(text)))
	buf = append(buf, text...)
	buf = append(buf, byte(tagEndElement))

	col, err := DecodeRecord(buf, nil, 0, nil)
	require.NoError(t, err)
	v, ok := col.Get("Root")
	require.True(t, ok)
	require.Equal(t, "hi", v)
}

func TestDecodeRecordTemplateInstanceBindsSubstitution(t *testing.T) {
	valueBytes := appendUTF16LE(nil, "bar")
	buf := buildTemplateInstanceRecord("Root", byte(ValueString), valueBytes)

	col, err := DecodeRecord(buf, nil, 0, nil)
	require.NoError(t, err)
	v, ok := col.Get("Root")
	require.True(t, ok)
	require.Equal(t, "bar", v)
}

func TestDecodeRecordAbsorbsCorruptValueAsSentinel(t *testing.T) {
	// A GUID descriptor claiming only 4 bytes of payload is malformed: the
	// decoder must absorb the failure into "<CORRUPT DATA>" rather than
	// failing the whole record (spec §4.5, §7).
	buf := buildTemplateInstanceRecord("Root", byte(ValueGUID), []byte{1, 2, 3, 4})

	col, err := DecodeRecord(buf, nil, 0, nil)
	require.NoError(t, err)
	v, ok := col.Get("Root")
	require.True(t, ok)
	require.Equal(t, "<CORRUPT DATA>", v)
}

func TestDecodeRecordSharesTemplateCacheAcrossRecords(t *testing.T) {
	cache := make(TemplateCache)
	buf1 := buildTemplateInstanceRecord("Root", byte(ValueString), appendUTF16LE(nil, "first"))
	col1, err := DecodeRecord(buf1, nil, 0, cache)
	require.NoError(t, err)
	v, _ := col1.Get("Root")
	require.Equal(t, "first", v)
	require.Len(t, cache, 1)

	var cached *Template
	for _, tmpl := range cache {
		cached = tmpl
	}
	require.NotZero(t, cached.Checksum)

	buf2 := buildTemplateInstanceRecord("Root", byte(ValueString), appendUTF16LE(nil, "second"))
	_, err = DecodeRecord(buf2, nil, 0, cache)
	require.NoError(t, err)
	require.Len(t, cache, 1, "second record's definition offset collides with the first and must keep the cached definition")

	var stillCached *Template
	for _, tmpl := range cache {
		stillCached = tmpl
	}
	require.Equal(t, cached.Checksum, stillCached.Checksum, "cache hit must return the first definition's fingerprint unchanged")
}
