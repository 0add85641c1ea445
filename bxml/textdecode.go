package bxml

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf16leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// decodeUTF16LE decodes a UTF-16LE byte sequence to a UTF-8 string, trimming
// any trailing NUL characters (spec §4.1 STRING).
func decodeUTF16LE(data []byte) (string, error) {
	out, err := utf16leDecoder.Bytes(data)
	if err != nil {
		return "", wrapErr(ErrKindValueDecode, err, "utf-16le decode")
	}
	return strings.TrimRight(string(out), "\x00"), nil
}

// decodeANSI decodes a Windows-1252 ("ANSI") byte sequence up to the first
// NUL (spec §4.1 ANSI_STRING).
func decodeANSI(data []byte) (string, error) {
	if i := indexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", wrapErr(ErrKindValueDecode, err, "windows-1252 decode")
	}
	return string(out), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
