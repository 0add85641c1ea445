package bxml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadScalarIntegers(t *testing.T) {
	v, err := ReadValue(uint8(ValueUInt32), false, []byte{0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)

	v, err = ReadValue(uint8(ValueInt8), false, []byte{0xFF})
	require.NoError(t, err)
	require.Equal(t, int8(-1), v)
}

func TestReadScalarString(t *testing.T) {
	// "hi" UTF-16LE with a trailing NUL terminator.
	data := []byte{'h', 0, 'i', 0, 0, 0}
	v, err := ReadValue(uint8(ValueString), false, data)
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestReadScalarGUIDRoundTrip(t *testing.T) {
	data := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10,
	}
	v, err := ReadValue(uint8(ValueGUID), false, data)
	require.NoError(t, err)
	require.Equal(t, "{01020304-0506-0708-090A-0B0C0D0E0F10}", v)
}

func TestReadArrayConsumesWholeBuffer(t *testing.T) {
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	v, err := ReadValue(uint8(ValueUInt32)|descriptorArrayBit, true, data)
	require.NoError(t, err)
	require.Equal(t, []any{uint32(1), uint32(2), uint32(3)}, v)
}

func TestReadArrayMisalignedIsError(t *testing.T) {
	_, err := ReadValue(uint8(ValueUInt32), true, []byte{1, 0, 0})
	require.Error(t, err)
	require.True(t, IsValueDecodeError(err))
}

func TestReadSID(t *testing.T) {
	data := []byte{
		0x01,                   // revision
		0x02,                   // sub-authority count
		0x00, 0x00, 0x00, 0x00, 0x00, 0x05, // authority = 5
		0x15, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	}
	v, err := ReadValue(uint8(ValueSID), false, data)
	require.NoError(t, err)
	require.Equal(t, "S-1-5-21-1", v)
}

func TestReadHexInt(t *testing.T) {
	v, err := ReadValue(uint8(ValueHexInt32), false, []byte{0xFF, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, "0xff", v)
}
