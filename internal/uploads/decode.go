package uploads

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/saviobatista/movement-logger/internal/config"
)

// Decode turns raw log bytes into text. Invalid UTF-8 sequences become
// U+FFFD; latin1 logs are transcoded from Windows-1252.
func Decode(encoding string, data []byte) (string, error) {
	switch strings.ToLower(encoding) {
	case "", config.EncodingUTF8:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	case config.EncodingLatin1:
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode latin1: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}
