package wevt

import "golang.org/x/text/encoding/unicode"

var utf16leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// decodeUTF16LEZ decodes a UTF-16LE byte run and trims a trailing NUL
// terminator, the shape DATA_ITEM names are stored in.
func decodeUTF16LEZ(b []byte) string {
	out, err := utf16leDecoder.Bytes(b)
	if err != nil {
		return ""
	}
	s := string(out)
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}
