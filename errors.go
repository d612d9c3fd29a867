package tapejson

// ErrorCode is the result of building a tape from a structural index.
// The zero value means success.
type ErrorCode uint8

const (
	// Success indicates normal completion.
	Success ErrorCode = iota
	// ErrEmpty is returned when there are no structural indexes to consume.
	ErrEmpty
	// ErrTape is a grammar violation: a missing colon or comma, a non-value
	// byte where a value was expected, unclosed objects or arrays, or a root
	// array whose final structural is not ']'.
	ErrTape
	// ErrDepth is returned when nesting exceeds the configured maximum depth.
	ErrDepth
	// ErrString is an invalid escape, an unterminated string or an
	// unescaped control byte inside a string.
	ErrString
	// ErrNumber is a number outside the JSON grammar or outside the
	// representable range.
	ErrNumber
	// ErrTrueAtom, ErrFalseAtom and ErrNullAtom are malformed literals.
	ErrTrueAtom
	ErrFalseAtom
	ErrNullAtom
	// ErrMemAlloc is an allocation failure in the root-scalar number
	// fallback.
	ErrMemAlloc
)

var errorTexts = [...]string{
	Success:      "success",
	ErrEmpty:     "empty: no structural elements found",
	ErrTape:      "tape error: invalid structure inside document",
	ErrDepth:     "depth error: exceeded maximum nesting depth",
	ErrString:    "string error: invalid escape or control character in string",
	ErrNumber:    "number error: invalid number",
	ErrTrueAtom:  "atom error: malformed 'true' literal",
	ErrFalseAtom: "atom error: malformed 'false' literal",
	ErrNullAtom:  "atom error: malformed 'null' literal",
	ErrMemAlloc:  "allocation error: root scalar copy failed",
}

// Error implements the error interface.
// Success should not be returned as an error, but converts anyway.
func (e ErrorCode) Error() string {
	return e.String()
}

func (e ErrorCode) String() string {
	if int(e) < len(errorTexts) {
		return errorTexts[e]
	}
	return "unknown error"
}
