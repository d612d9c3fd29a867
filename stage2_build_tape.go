package tapejson

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// stage2Trace enables logging of structural events while building the tape.
// It is a compile-time constant so the trace calls vanish entirely from
// release builds. Tracing never alters control flow.
const stage2Trace = false

func (pj *internalParsedJson) trace(event, what string) {
	if stage2Trace {
		fmt.Printf("stage2: %-1s %-8s depth=%-3d tape=%d\n", event, what, pj.depth, len(pj.Tape))
	}
}

// scopeEntry records an open container: where its header word was reserved
// on the tape and how many direct children have completed so far.
type scopeEntry struct {
	tapeIndex uint32
	count     uint32
}

//
// Scope bookkeeping. A scope at depth d is recorded in containingScope[d]
// when the container is entered, and resolved when its end is observed.
//

// pushScope notes whether the enclosing container is an array and descends
// one level. Exceeding the configured maximum depth is an error.
func (pj *internalParsedJson) pushScope(parentIsArray bool) ErrorCode {
	pj.isArray[pj.depth] = parentIsArray
	pj.depth++
	if pj.depth > pj.maxDepth {
		return ErrDepth
	}
	return Success
}

// startScope reserves the container header word on the tape. The header is
// not written until endScope, when the end position and child count are
// known.
func (pj *internalParsedJson) startScope(depth int) {
	pj.containingScope[depth] = scopeEntry{tapeIndex: uint32(pj.currentLoc())}
	pj.reserveTape()
}

// endScope appends the scope end word and patches the reserved header.
// The header carries the tape index of the end word in its low 32 payload
// bits and the child count, saturated at maxScopeCount, above it. A stored
// count of maxScopeCount means the true count is unknown but at least that.
func (pj *internalParsedJson) endScope(depth int, start, end Tag) {
	scope := &pj.containingScope[depth]
	endIndex := pj.currentLoc()
	pj.writeTape(uint64(scope.tapeIndex), end)
	cnt := uint64(scope.count)
	if cnt > maxScopeCount {
		cnt = maxScopeCount
	}
	pj.writeTapeAt(uint64(scope.tapeIndex), endIndex|cnt<<32, start)
}

// incrementCount records a completed direct child of the current scope.
func (pj *internalParsedJson) incrementCount() {
	pj.containingScope[pj.depth].count++
}

func (pj *internalParsedJson) startDocumentScope() ErrorCode {
	pj.trace("+", "document")
	if err := pj.pushScope(false); err != Success {
		return err
	}
	// The document scope always lives in slot 0, so the first and last
	// tape words become a matched pair of root sentinels.
	pj.startScope(0)
	return Success
}

func (pj *internalParsedJson) endDocumentScope() {
	pj.trace("-", "document")
	pj.depth--
	pj.endScope(0, TagRoot, TagRoot)
}

func (pj *internalParsedJson) startObjectScope(parentIsArray bool) ErrorCode {
	pj.trace("+", "object")
	if err := pj.pushScope(parentIsArray); err != Success {
		return err
	}
	pj.startScope(pj.depth)
	return Success
}

func (pj *internalParsedJson) endObjectScope() {
	pj.trace("-", "object")
	pj.endScope(pj.depth, TagObjectStart, TagObjectEnd)
	pj.depth--
}

func (pj *internalParsedJson) startArrayScope(parentIsArray bool) ErrorCode {
	pj.trace("+", "array")
	if err := pj.pushScope(parentIsArray); err != Success {
		return err
	}
	pj.startScope(pj.depth)
	return Success
}

func (pj *internalParsedJson) endArrayScope() {
	pj.trace("-", "array")
	pj.endScope(pj.depth, TagArrayStart, TagArrayEnd)
	pj.depth--
}

//
// Value visitor. Each operation consumes one value at a structural offset
// and appends its tape representation.
//

// parseStringValue unescapes the string starting at the opening quote at
// offset src and appends it to the string buffer as a 4-byte little-endian
// length prefix, the unescaped bytes and a NUL terminator. The tape word
// points at the length prefix.
func (pj *internalParsedJson) parseStringValue(src uint32) ErrorCode {
	pj.trace(" ", "string")
	start := len(pj.Strings)
	pj.writeTape(uint64(start), TagString)
	pj.Strings = append(pj.Strings, 0, 0, 0, 0)
	dst, ok := unescape(pj.Message[src+1:], pj.Strings)
	if !ok {
		return ErrString
	}
	binary.LittleEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	pj.Strings = append(dst, 0)
	return Success
}

// parseKey parses an object key. Keys and string values share one
// representation.
func (pj *internalParsedJson) parseKey(src uint32) ErrorCode {
	return pj.parseStringValue(src)
}

func (pj *internalParsedJson) parseNumberValue(buf []byte) ErrorCode {
	pj.trace(" ", "number")
	tag, val, code := parseNumber(buf)
	if code != Success {
		return code
	}
	pj.writeTapeTagVal(tag, val)
	return Success
}

// parseRootNumber parses a number that forms the whole root value. Such a
// number may end flush with the input, so the tail is copied into a scratch
// buffer padded with spaces before parsing.
func (pj *internalParsedJson) parseRootNumber(src uint32) ErrorCode {
	rem := pj.Message[src:]
	scratch := make([]byte, len(rem)+padBytes)
	n := copy(scratch, rem)
	for i := n; i < len(scratch); i++ {
		scratch[i] = ' '
	}
	return pj.parseNumberValue(scratch)
}

func (pj *internalParsedJson) parseTrueAtom(buf []byte) ErrorCode {
	pj.trace(" ", "true")
	if !isValidTrueAtom(buf) {
		return ErrTrueAtom
	}
	pj.writeTape(0, TagBoolTrue)
	return Success
}

func (pj *internalParsedJson) parseFalseAtom(buf []byte) ErrorCode {
	pj.trace(" ", "false")
	if !isValidFalseAtom(buf) {
		return ErrFalseAtom
	}
	pj.writeTape(0, TagBoolFalse)
	return Success
}

func (pj *internalParsedJson) parseNullAtom(buf []byte) ErrorCode {
	pj.trace(" ", "null")
	if !isValidNullAtom(buf) {
		return ErrNullAtom
	}
	pj.writeTape(0, TagNull)
	return Success
}

func isValidTrueAtom(buf []byte) bool {
	if len(buf) >= 8 { // fast path when there is enough space left in the buffer
		tv := uint64(0x0000000065757274) // "true    "
		mask4 := uint64(0x00000000ffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		diff := (locval & mask4) ^ tv
		diff |= uint64(isNotStructuralOrWhitespace(buf[4]))
		return diff == 0
	} else if len(buf) >= 5 {
		return bytes.Equal(buf[:4], []byte("true")) && isNotStructuralOrWhitespace(buf[4]) == 0
	} else if len(buf) == 4 {
		// the literal ends flush with the input
		return bytes.Equal(buf, []byte("true"))
	}
	return false
}

func isValidFalseAtom(buf []byte) bool {
	if len(buf) >= 8 { // fast path when there is enough space left in the buffer
		fv := uint64(0x00000065736c6166) // "false   "
		mask5 := uint64(0x000000ffffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		diff := (locval & mask5) ^ fv
		diff |= uint64(isNotStructuralOrWhitespace(buf[5]))
		return diff == 0
	} else if len(buf) >= 6 {
		return bytes.Equal(buf[:5], []byte("false")) && isNotStructuralOrWhitespace(buf[5]) == 0
	} else if len(buf) == 5 {
		return bytes.Equal(buf, []byte("false"))
	}
	return false
}

func isValidNullAtom(buf []byte) bool {
	if len(buf) >= 8 { // fast path when there is enough space left in the buffer
		nv := uint64(0x000000006c6c756e) // "null    "
		mask4 := uint64(0x00000000ffffffff)
		locval := binary.LittleEndian.Uint64(buf)
		diff := (locval & mask4) ^ nv
		diff |= uint64(isNotStructuralOrWhitespace(buf[4]))
		return diff == 0
	} else if len(buf) >= 5 {
		return bytes.Equal(buf[:4], []byte("null")) && isNotStructuralOrWhitespace(buf[4]) == 0
	} else if len(buf) == 4 {
		return bytes.Equal(buf, []byte("null"))
	}
	return false
}

// buildTape runs the grammar state machine over the structural index and
// emits the tape for one document.
//
// In streaming mode parsing starts at nextStructuralIndex rather than 0,
// the root-array terminal check is skipped (trailing content may be another
// document), and nextStructuralIndex is left pointing one past the last
// structural consumed.
func (pj *internalParsedJson) buildTape(streaming bool) ErrorCode {
	var (
		iter = structuralIterator{buf: pj.Message, indexes: pj.structuralIndexes}
		n    = len(pj.structuralIndexes)
		err  ErrorCode
		c    byte
		src  uint32
	)
	if streaming {
		iter.pos = int(pj.nextStructuralIndex)
	}
	pj.Tape = pj.Tape[:0]
	pj.Strings = pj.Strings[:0]
	pj.depth = 0

	if iter.atEnd(n) {
		return ErrEmpty
	}
	if err = pj.startDocumentScope(); err != Success {
		return err
	}

	// Read the first value.
	src = iter.current()
	switch iter.currentChar() {
	case '{':
		if err = pj.startObjectScope(false); err != Success {
			return err
		}
		goto objectBegin
	case '[':
		if err = pj.startArrayScope(false); err != Success {
			return err
		}
		// Make sure the outer array is closed before continuing; otherwise
		// a partial closure could leave the tape referencing unreachable
		// offsets downstream. See simdjson issue 906.
		if !streaming {
			if iter.charAt(n-1) != ']' {
				return ErrTape
			}
		}
		goto arrayBegin
	case '"':
		if err = pj.parseStringValue(src); err != Success {
			return err
		}
		goto finish
	case 't':
		if err = pj.parseTrueAtom(pj.Message[src:]); err != Success {
			return err
		}
		goto finish
	case 'f':
		if err = pj.parseFalseAtom(pj.Message[src:]); err != Success {
			return err
		}
		goto finish
	case 'n':
		if err = pj.parseNullAtom(pj.Message[src:]); err != Success {
			return err
		}
		goto finish
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if err = pj.parseRootNumber(src); err != Success {
			return err
		}
		goto finish
	default:
		// document starts with a non-value character
		return ErrTape
	}

	//
	// Object states
	//

objectBegin:
	switch iter.advanceChar() {
	case '"':
		if err = pj.parseKey(iter.current()); err != Success {
			return err
		}
		goto objectKeyState
	case '}':
		// empty object
		pj.endObjectScope()
		goto scopeEnd
	default:
		// object does not start with a key
		return ErrTape
	}

objectKeyState:
	if iter.advanceChar() != ':' {
		// missing colon after key in object
		return ErrTape
	}
	c = iter.advanceChar()
	src = iter.current()
	switch c {
	case '{':
		if err = pj.startObjectScope(false); err != Success {
			return err
		}
		goto objectBegin
	case '[':
		if err = pj.startArrayScope(false); err != Success {
			return err
		}
		goto arrayBegin
	case '"':
		if err = pj.parseStringValue(src); err != Success {
			return err
		}
	case 't':
		if err = pj.parseTrueAtom(pj.Message[src:]); err != Success {
			return err
		}
	case 'f':
		if err = pj.parseFalseAtom(pj.Message[src:]); err != Success {
			return err
		}
	case 'n':
		if err = pj.parseNullAtom(pj.Message[src:]); err != Success {
			return err
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if err = pj.parseNumberValue(pj.Message[src:]); err != Success {
			return err
		}
	default:
		// non-value found when value was expected
		return ErrTape
	}
	pj.incrementCount()

objectContinue:
	switch iter.advanceChar() {
	case ',':
		if iter.advanceChar() != '"' {
			// key string missing at beginning of field in object
			return ErrTape
		}
		if err = pj.parseKey(iter.current()); err != Success {
			return err
		}
		goto objectKeyState
	case '}':
		pj.endObjectScope()
		goto scopeEnd
	default:
		// no comma between object fields
		return ErrTape
	}

	//
	// Shared scope end
	//

scopeEnd:
	if pj.depth == 1 {
		goto finish
	}
	// The closed container is itself a completed child of its parent.
	pj.incrementCount()
	if pj.isArray[pj.depth] {
		goto arrayContinue
	}
	goto objectContinue

	//
	// Array states
	//

arrayBegin:
	if iter.peekChar(1) == ']' {
		// empty array
		iter.advanceChar()
		pj.endArrayScope()
		goto scopeEnd
	}

mainArraySwitch:
	c = iter.advanceChar()
	src = iter.current()
	switch c {
	case '{':
		if err = pj.startObjectScope(true); err != Success {
			return err
		}
		goto objectBegin
	case '[':
		if err = pj.startArrayScope(true); err != Success {
			return err
		}
		goto arrayBegin
	case '"':
		if err = pj.parseStringValue(src); err != Success {
			return err
		}
	case 't':
		if err = pj.parseTrueAtom(pj.Message[src:]); err != Success {
			return err
		}
	case 'f':
		if err = pj.parseFalseAtom(pj.Message[src:]); err != Success {
			return err
		}
	case 'n':
		if err = pj.parseNullAtom(pj.Message[src:]); err != Success {
			return err
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if err = pj.parseNumberValue(pj.Message[src:]); err != Success {
			return err
		}
	default:
		// non-value found when value was expected
		return ErrTape
	}
	pj.incrementCount()

arrayContinue:
	switch iter.advanceChar() {
	case ',':
		goto mainArraySwitch
	case ']':
		pj.endArrayScope()
		goto scopeEnd
	default:
		// missing comma between array values
		return ErrTape
	}

	//
	// Final state
	//

finish:
	pj.endDocumentScope()
	pj.nextStructuralIndex = uint32(iter.pos + 1)
	if pj.depth != 0 {
		// unclosed objects or arrays
		return ErrTape
	}
	return Success
}
