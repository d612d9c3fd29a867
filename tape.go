/*
 * MinIO Cloud Storage, (C) 2022 MinIO, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tapejson

import (
	"encoding/binary"
	"fmt"
)

// JSONVALUEMASK masks out the payload of a tape word.
const JSONVALUEMASK = 0xffffffffffffff

// JSONTAGMASK masks out the tag of a tape word.
const JSONTAGMASK = 0xff << 56

// JSONINDEXMASK masks out the tape index part of a container payload.
// The upper 24 payload bits of a start tag carry the saturated child count.
const JSONINDEXMASK = 0xffffffff

// maxScopeCount is the saturation point for container child counts.
// A stored count of maxScopeCount means "unknown, at least this many".
const maxScopeCount = 0xffffff

// DefaultMaxDepth is the maximum nesting depth unless overridden with
// WithMaxDepth.
const DefaultMaxDepth = 128

// padBytes is how much scratch space value parsers may read past a value
// start. Inputs are not required to carry padding; parsers that can run
// into the buffer end make a padded copy first.
const padBytes = 64

// Tag indicates the data type of a tape entry.
type Tag uint8

const (
	TagString      = Tag('"')
	TagInteger     = Tag('l')
	TagUint        = Tag('u')
	TagFloat       = Tag('d')
	TagNull        = Tag('n')
	TagBoolTrue    = Tag('t')
	TagBoolFalse   = Tag('f')
	TagObjectStart = Tag('{')
	TagObjectEnd   = Tag('}')
	TagArrayStart  = Tag('[')
	TagArrayEnd    = Tag(']')
	TagRoot        = Tag('r')
	TagEnd         = Tag(0)
)

func (t Tag) String() string {
	return string([]byte{byte(t)})
}

// Type is a JSON value type.
type Type uint8

const (
	TypeNone Type = iota
	TypeNull
	TypeString
	TypeInt
	TypeUint
	TypeFloat
	TypeBool
	TypeObject
	TypeArray
	TypeRoot
)

// String returns the type as a string.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "(no type)"
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeRoot:
		return "root"
	}
	return "(invalid)"
}

// TagToType converts a tag to type.
// For arrays and objects only the start tag will return types.
// All non-existing tags returns TypeNone.
var TagToType = [256]Type{
	TagString:      TypeString,
	TagInteger:     TypeInt,
	TagUint:        TypeUint,
	TagFloat:       TypeFloat,
	TagNull:        TypeNull,
	TagBoolTrue:    TypeBool,
	TagBoolFalse:   TypeBool,
	TagObjectStart: TypeObject,
	TagArrayStart:  TypeArray,
	TagRoot:        TypeRoot,
}

// Type converts a tag to a type.
// Only basic types and array+object start match a type.
func (t Tag) Type() Type {
	return TagToType[t]
}

// ParsedJson is the output of a parse: the tape, the unescaped string
// buffer and the original message.
//
// The tape is a sequence of 64-bit words. Each word carries an 8-bit tag in
// its high byte and a 56-bit payload in the low bits. Container start tags
// carry the tape index of the matching end tag in the low 32 payload bits
// and the saturated child count in the upper 24; end tags point back at
// their start. The two root words point at each other. String tags carry
// the offset of a 4-byte little-endian length prefix in Strings; the
// unescaped bytes follow the prefix and are NUL terminated. Number tags
// carry no payload and are followed by one raw value word.
type ParsedJson struct {
	Message []byte
	Tape    []uint64
	Strings []byte

	// allows to reuse the internal structures without exposing it.
	internal *internalParsedJson
}

// Iter returns a new Iter positioned at the start of the tape.
func (pj *ParsedJson) Iter() Iter {
	return Iter{tape: *pj}
}

// Reset drops the parsed content, but retains the buffers.
func (pj *ParsedJson) Reset() {
	pj.Tape = pj.Tape[:0]
	pj.Strings = pj.Strings[:0]
	pj.Message = pj.Message[:0]
}

// stringAt returns the string whose length prefix starts at the given
// offset in the string buffer.
func (pj *ParsedJson) stringAt(offset uint64) (string, error) {
	b, err := pj.stringByteAt(offset)
	return string(b), err
}

// stringByteAt returns the string bytes whose length prefix starts at the
// given offset in the string buffer.
func (pj *ParsedJson) stringByteAt(offset uint64) ([]byte, error) {
	if offset+4 > uint64(len(pj.Strings)) {
		return nil, fmt.Errorf("string buffer offset (%v) outside valid area (%v)", offset, len(pj.Strings))
	}
	length := uint64(binary.LittleEndian.Uint32(pj.Strings[offset:]))
	if offset+4+length > uint64(len(pj.Strings)) {
		return nil, fmt.Errorf("string buffer offset (%v) outside valid area (%v)", offset+4+length, len(pj.Strings))
	}
	return pj.Strings[offset+4 : offset+4+length], nil
}

//
// Tape writer. The cursor is the tape length; all writes are forward-only
// except writeTapeAt, which patches a previously reserved container header.
//

// currentLoc returns the current tape position.
func (pj *ParsedJson) currentLoc() uint64 {
	return uint64(len(pj.Tape))
}

// writeTape writes one tagged word and advances the cursor.
// Payloads wider than 56 bits are truncated.
func (pj *ParsedJson) writeTape(val uint64, tag Tag) {
	pj.Tape = append(pj.Tape, (val&JSONVALUEMASK)|(uint64(tag)<<56))
}

// writeTapeTagVal writes a tag word with zero payload, followed by one raw
// 64-bit value word.
func (pj *ParsedJson) writeTapeTagVal(tag Tag, val uint64) {
	pj.Tape = append(pj.Tape, uint64(tag)<<56, val)
}

// reserveTape advances the cursor by one word without writing.
// The slot is patched later with writeTapeAt.
func (pj *ParsedJson) reserveTape() {
	pj.Tape = append(pj.Tape, 0)
}

// writeTapeAt overwrites a previously reserved word in place.
func (pj *ParsedJson) writeTapeAt(loc, val uint64, tag Tag) {
	pj.Tape[loc] = (val & JSONVALUEMASK) | (uint64(tag) << 56)
}
