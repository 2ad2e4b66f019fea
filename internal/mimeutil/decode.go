// Package mimeutil decodes RFC 2047 encoded words and normalizes header
// values for display and message identity comparison.
package mimeutil

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func init() {
	// Some providers label headers with charsets go-message does not
	// register out of the box.
	charset.RegisterEncoding("ascii", unicode.UTF8)
	charset.RegisterEncoding("us-ascii", unicode.UTF8)
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes MIME encoded words in a header value, returning
// the input unchanged if decoding fails.
func DecodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// NormalizeMessageID strips the angle brackets or quotes some servers
// wrap around Message-ID values, so IDs compare equal across providers.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	// A lone quote or bracket matches both the prefix and suffix check.
	if len(id) >= 2 &&
		((strings.HasPrefix(id, "<") && strings.HasSuffix(id, ">")) ||
			(strings.HasPrefix(id, "\"") && strings.HasSuffix(id, "\""))) {
		id = id[1 : len(id)-1]
	}
	return id
}
