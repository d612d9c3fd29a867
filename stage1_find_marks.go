package tapejson

import (
	"encoding/binary"
	"math/bits"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// The string scanner has a word-at-a-time kernel that relies on cheap
// unaligned 64-bit loads and fast trailing-zero counts. Use it where the
// hardware makes those fast, fall back to the bytewise kernel elsewhere.
var useFastScan = runtime.GOARCH == "arm64" || cpuid.CPU.Supports(cpuid.POPCNT, cpuid.BMI1)

// SupportedCPU reports whether the accelerated scanner kernel is in use.
// Parsing works either way; this only affects stage 1 throughput.
func SupportedCPU() bool {
	return useFastScan
}

// findStructuralIndexes scans the message and fills structuralIndexes with
// the byte offsets of all structural characters: braces, brackets, colon,
// comma, the opening quote of each string, and the first byte of each
// scalar run. Offsets are strictly increasing.
//
// Returns false when a string is left unterminated at the end of the input.
// All other validation is grammar work and belongs to stage 2.
func (pj *internalParsedJson) findStructuralIndexes() bool {
	buf := pj.Message
	indexes := pj.structuralIndexes[:0]
	i := 0
	for i < len(buf) {
		c := buf[i]
		switch {
		case c == '"':
			indexes = append(indexes, uint32(i))
			end, ok := skipString(buf, i+1)
			if !ok {
				return false
			}
			i = end
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case structuralOrWhitespace[c] == 1:
			indexes = append(indexes, uint32(i))
			i++
		default:
			// pseudo-structural: the first byte of an atom or number run
			indexes = append(indexes, uint32(i))
			i++
			for i < len(buf) && buf[i] != '"' && structuralOrWhitespace[buf[i]] == 0 {
				i++
			}
		}
	}
	pj.structuralIndexes = indexes
	return true
}

// skipString advances from the byte after an opening quote to the byte
// after the closing quote, honoring backslash escapes.
func skipString(buf []byte, i int) (end int, ok bool) {
	if useFastScan {
		return skipStringFast(buf, i)
	}
	return skipStringGeneric(buf, i)
}

func skipStringGeneric(buf []byte, i int) (int, bool) {
	for i < len(buf) {
		switch buf[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1, true
		default:
			i++
		}
	}
	return i, false
}

const (
	lsbBroadcast = 0x0101010101010101
	msbBroadcast = 0x8080808080808080
)

// hasByte returns a mask with bit 7 set in every lane of w equal to b.
func hasByte(w uint64, b byte) uint64 {
	x := w ^ (lsbBroadcast * uint64(b))
	return (x - lsbBroadcast) &^ x & msbBroadcast
}

// skipStringFast scans eight bytes per iteration until it hits a quote or
// a backslash, then resolves that byte the slow way.
func skipStringFast(buf []byte, i int) (int, bool) {
	for i+8 <= len(buf) {
		w := binary.LittleEndian.Uint64(buf[i:])
		mask := hasByte(w, '"') | hasByte(w, '\\')
		if mask == 0 {
			i += 8
			continue
		}
		i += bits.TrailingZeros64(mask) >> 3
		if buf[i] == '"' {
			return i + 1, true
		}
		i += 2 // skip the escape
	}
	return skipStringGeneric(buf, i)
}
