package rules

import (
	"net/url"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// NormalizeURL returns the canonical form used as Config and snapshot key.
// It lowercases scheme and host, drops default ports and fragments, gives an
// empty path a leading slash and percent-encodes characters that may not
// appear raw. Applying it twice yields the same string.
func NormalizeURL(raw string) string {
	quoted := requote(strings.TrimSpace(raw))
	u, err := url.Parse(quoted)
	if err != nil || u.Opaque != "" {
		return quoted
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = requote(u.RawQuery)
	return u.String()
}

// requote percent-encodes bytes outside the URI reserved and unreserved
// sets, and any '%' not followed by two hex digits. Valid escapes are kept
// with their hex digits uppercased.
func requote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				sb.WriteByte(c)
				sb.WriteByte(upperHex(s[i+1]))
				sb.WriteByte(upperHex(s[i+2]))
				i += 2
			} else {
				sb.WriteString("%25")
			}
		case isAllowed(c):
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0x0f])
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func upperHex(c byte) byte {
	if 'a' <= c && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

func isAllowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~:/?#[]@!$&'()*+,;=", c) >= 0
}
