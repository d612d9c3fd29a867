package tapejson

import (
	"math"
	"strconv"
)

// parseNumber parses a JSON number starting at buf[0] and ending at the
// first structural or whitespace byte (or the end of buf).
//
// Integers that fit are returned as TagInteger, positive integers beyond
// int64 as TagUint, everything else as TagFloat. Integers that under- or
// overflow uint64 as well fall back to a float result.
func parseNumber(buf []byte) (tag Tag, val uint64, code ErrorCode) {
	pos := 0
	neg := false
	if pos < len(buf) && buf[pos] == '-' {
		neg = true
		pos++
	}
	if pos >= len(buf) || !isDigit(buf[pos]) {
		return TagEnd, 0, ErrNumber
	}

	var u uint64
	overflow := false
	if buf[pos] == '0' {
		pos++
		// leading zeros are not allowed
		if pos < len(buf) && isDigit(buf[pos]) {
			return TagEnd, 0, ErrNumber
		}
	} else {
		for pos < len(buf) && isDigit(buf[pos]) {
			d := uint64(buf[pos] - '0')
			if u > (math.MaxUint64-d)/10 {
				overflow = true
			}
			u = u*10 + d
			pos++
		}
	}
	isDouble := false
	if pos < len(buf) && buf[pos] == '.' {
		isDouble = true
		pos++
		if pos >= len(buf) || !isDigit(buf[pos]) {
			return TagEnd, 0, ErrNumber
		}
		for pos < len(buf) && isDigit(buf[pos]) {
			pos++
		}
	}
	if pos < len(buf) && (buf[pos] == 'e' || buf[pos] == 'E') {
		isDouble = true
		pos++
		if pos < len(buf) && (buf[pos] == '+' || buf[pos] == '-') {
			pos++
		}
		if pos >= len(buf) || !isDigit(buf[pos]) {
			return TagEnd, 0, ErrNumber
		}
		for pos < len(buf) && isDigit(buf[pos]) {
			pos++
		}
	}
	if pos < len(buf) && isNotStructuralOrWhitespace(buf[pos]) == 1 {
		return TagEnd, 0, ErrNumber
	}

	if isDouble || overflow {
		d, err := strconv.ParseFloat(string(buf[:pos]), 64)
		if err != nil {
			return TagEnd, 0, ErrNumber
		}
		return TagFloat, math.Float64bits(d), Success
	}
	if neg {
		if u > 1<<63 {
			// underflows int64, keep the value as a float
			d, err := strconv.ParseFloat(string(buf[:pos]), 64)
			if err != nil {
				return TagEnd, 0, ErrNumber
			}
			return TagFloat, math.Float64bits(d), Success
		}
		return TagInteger, uint64(-int64(u)), Success
	}
	if u > math.MaxInt64 {
		return TagUint, u, Success
	}
	return TagInteger, u, Success
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
