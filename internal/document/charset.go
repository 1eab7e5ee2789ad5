package document

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const replacement = "\uFFFD"

// Decode converts a fetched body to UTF-8. The encoding comes from a BOM, the
// charset parameter of contentType or a <meta> declaration, in that order;
// undeclared bodies that are not valid UTF-8 are read as windows-1252 the way
// browsers do. Bytes that still fail to decode become U+FFFD, so the result
// always survives a round trip through storage unchanged.
func Decode(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return strings.ToValidUTF8(string(body), replacement)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(body), replacement)
	}
	return strings.ToValidUTF8(string(decoded), replacement)
}
