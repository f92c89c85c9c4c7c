package ingest

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeLenient converts file contents to UTF-8 without ever failing. Lines
// that are already valid UTF-8 are kept as-is; any other line is decoded as
// Windows-1252, the encoding of the older MMDA exports.
func decodeLenient(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}

	out := make([]byte, 0, len(data)+len(data)/8)
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if utf8.Valid(line) {
			out = append(out, line...)
			continue
		}
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(line)
		if err != nil {
			// Windows-1252 defines every byte, so this is not expected.
			decoded = bytes.ToValidUTF8(line, []byte(string(utf8.RuneError)))
		}
		out = append(out, decoded...)
	}
	return out
}
