package evt

import (
	"golang.org/x/text/encoding/unicode"
)

var utf16leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

func decodeUTF16LE(data []byte) (string, error) {
	out, err := utf16leDecoder.Bytes(data)
	if err != nil {
		return "", newErr("utf-16le decode: %v", err)
	}
	return string(out), nil
}
