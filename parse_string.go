package tapejson

import (
	"unicode/utf16"
	"unicode/utf8"
)

// structuralOrWhitespace is 1 for bytes that may legally follow a number
// or literal atom: JSON structural characters and whitespace.
var structuralOrWhitespace = [256]byte{
	'\t': 1, '\n': 1, '\r': 1, ' ': 1,
	'{': 1, '}': 1, '[': 1, ']': 1, ':': 1, ',': 1,
}

func isNotStructuralOrWhitespace(c byte) byte {
	return 1 - structuralOrWhitespace[c]
}

var hexToVal = [256]int8{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'a': 10, 'b': 11, 'c': 12, 'd': 13, 'e': 14, 'f': 15,
	'A': 10, 'B': 11, 'C': 12, 'D': 13, 'E': 14, 'F': 15,
}

func init() {
	for i := range hexToVal {
		switch {
		case i >= '0' && i <= '9':
		case i >= 'a' && i <= 'f':
		case i >= 'A' && i <= 'F':
		default:
			hexToVal[i] = -1
		}
	}
}

// hexToU32 decodes four hex digits, or returns a value > 0xFFFF on bad input.
func hexToU32(src []byte) uint32 {
	v1 := hexToVal[src[0]]
	v2 := hexToVal[src[1]]
	v3 := hexToVal[src[2]]
	v4 := hexToVal[src[3]]
	if v1|v2|v3|v4 < 0 {
		return 0xFFFFFFFF
	}
	return uint32(v1)<<12 | uint32(v2)<<8 | uint32(v3)<<4 | uint32(v4)
}

// unescape appends the unescaped content of a quoted JSON string to dst.
// src must start at the byte following the opening quote. It stops at the
// closing quote and returns the extended buffer.
// ok is false on an invalid escape, an unescaped control byte or a missing
// closing quote.
func unescape(src, dst []byte) (res []byte, ok bool) {
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"':
			return dst, true
		case c == '\\':
			if i+1 >= len(src) {
				return dst, false
			}
			esc := src[i+1]
			if esc == 'u' {
				if i+6 > len(src) {
					return dst, false
				}
				cp := hexToU32(src[i+2 : i+6])
				if cp > 0xFFFF {
					return dst, false
				}
				i += 6
				r := rune(cp)
				if utf16.IsSurrogate(r) {
					// a high surrogate must pair with an immediately
					// following \u-escaped low surrogate
					if i+6 > len(src) || src[i] != '\\' || src[i+1] != 'u' {
						return dst, false
					}
					cp2 := hexToU32(src[i+2 : i+6])
					if cp2 > 0xFFFF {
						return dst, false
					}
					r = utf16.DecodeRune(r, rune(cp2))
					if r == utf8.RuneError {
						return dst, false
					}
					i += 6
				}
				var tmp [4]byte
				n := utf8.EncodeRune(tmp[:], r)
				dst = append(dst, tmp[:n]...)
				continue
			}
			var u byte
			switch esc {
			case '"', '\\', '/':
				u = esc
			case 'b':
				u = '\b'
			case 'f':
				u = '\f'
			case 'n':
				u = '\n'
			case 'r':
				u = '\r'
			case 't':
				u = '\t'
			default:
				return dst, false
			}
			dst = append(dst, u)
			i += 2
		case c < 0x20:
			// unescaped control characters are forbidden inside strings
			return dst, false
		default:
			dst = append(dst, c)
			i++
		}
	}
	return dst, false
}
