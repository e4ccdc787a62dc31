package httpproto

import (
	"errors"
	"strings"
)

// decodePathComponent percent-decodes s, leaving '+' literal — a path is not
// a form-encoded space domain. ok is false on a malformed percent escape.
func decodePathComponent(s string) (string, bool) {
	out, err := percentDecode(s, false)
	if err != nil {
		return "", false
	}
	return out, true
}

// decodeQueryComponent percent-decodes s and additionally turns '+' into a
// space, per the query-string convention.
func decodeQueryComponent(s string) (string, error) {
	return percentDecode(s, true)
}

func percentDecode(s string, plusAsSpace bool) (string, error) {
	needsWork := strings.Contains(s, "%") || (plusAsSpace && strings.Contains(s, "+"))
	if !needsWork {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '%':
			if i+2 >= len(s) {
				return "", errors.New("httpproto: truncated percent escape")
			}
			hi, ok1 := hexVal(s[i+1])
			lo, ok2 := hexVal(s[i+2])
			if !ok1 || !ok2 {
				return "", errors.New("httpproto: invalid percent escape")
			}
			b.WriteByte(byte(hi<<4 | lo))
			i += 2
		case c == '+' && plusAsSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// parseQuery parses a raw query string ("k1=v1&k2=v2") into dst, decoding
// keys and values per decodeQueryComponent. A pair with no '=' is stored with
// an empty-string value.
func parseQuery(raw string, dst map[string]string) error {
	if raw == "" {
		return nil
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		var key, value string
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		} else {
			key = pair
		}
		dk, err := decodeQueryComponent(key)
		if err != nil {
			return err
		}
		dv, err := decodeQueryComponent(value)
		if err != nil {
			return err
		}
		dst[dk] = dv
	}
	return nil
}
