package ir

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as canonical JSON: object keys in sorted
// order, strings NFC normalized, no HTML escaping, integers only. It backs
// every digest and trace line, so equal inputs always produce equal bytes.
//
// Supported inputs: string, Identity, bool, int, int64, uint64, []Identity
// and map[string]any of those.
func MarshalCanonical(v any) ([]byte, error) {
	return appendCanonical(nil, v)
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return appendString(buf, val), nil
	case Identity:
		return appendString(buf, string(val)), nil
	case bool:
		return strconv.AppendBool(buf, val), nil
	case int:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(buf, val, 10), nil
	case uint64:
		return strconv.AppendUint(buf, val, 10), nil
	case []Identity:
		buf = append(buf, '[')
		for i, id := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, string(id))
		}
		return append(buf, ']'), nil
	case map[string]any:
		return appendObject(buf, val)
	case nil:
		return nil, errors.New("canonical JSON: null is not allowed")
	default:
		return nil, fmt.Errorf("canonical JSON: unsupported type %T", v)
	}
}

// appendObject writes keys in byte order. Record keys are ASCII field
// names, where byte order and UTF-16 order agree.
func appendObject(buf []byte, obj map[string]any) ([]byte, error) {
	buf = append(buf, '{')
	for i, k := range slices.Sorted(maps.Keys(obj)) {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, k)
		buf = append(buf, ':')

		var err error
		if buf, err = appendCanonical(buf, obj[k]); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	return append(buf, '}'), nil
}

const hexDigits = "0123456789abcdef"

// appendString escapes only the quote, the backslash and control bytes.
// Invalid UTF-8 becomes U+FFFD.
func appendString(buf []byte, s string) []byte {
	s = norm.NFC.String(strings.ToValidUTF8(s, "\uFFFD"))
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			buf = append(buf, '\\', c)
		case '\b':
			buf = append(buf, `\b`...)
		case '\f':
			buf = append(buf, `\f`...)
		case '\n':
			buf = append(buf, `\n`...)
		case '\r':
			buf = append(buf, `\r`...)
		case '\t':
			buf = append(buf, `\t`...)
		default:
			if c < 0x20 {
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
				continue
			}
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}
