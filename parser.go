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
	"io"
)

type internalParsedJson struct {
	ParsedJson

	// grammar machine state
	maxDepth        int
	depth           int
	containingScope []scopeEntry
	isArray         []bool

	// stage 1 output and the streaming cursor into it
	structuralIndexes   []uint32
	nextStructuralIndex uint32
}

// initialize sets up the buffers for a message of the given size.
// Buffers surviving from an earlier parse are retained when big enough.
func (pj *internalParsedJson) initialize(size int) {
	if pj.maxDepth == 0 {
		pj.maxDepth = DefaultMaxDepth
	}
	// Estimate the tape size to be about 15% of the length of the JSON message.
	avgTapeSize := size * 15 / 100
	if cap(pj.Tape) < avgTapeSize {
		pj.Tape = make([]uint64, 0, avgTapeSize)
	}
	pj.Tape = pj.Tape[:0]

	stringsSize := size / 10
	if stringsSize < 128 {
		stringsSize = 128 // always allocate at least 128 for the string buffer
	}
	if cap(pj.Strings) < stringsSize {
		pj.Strings = make([]byte, 0, stringsSize)
	}
	pj.Strings = pj.Strings[:0]

	if cap(pj.structuralIndexes) < size/8 {
		pj.structuralIndexes = make([]uint32, 0, size/8)
	}
	pj.structuralIndexes = pj.structuralIndexes[:0]

	if len(pj.containingScope) <= pj.maxDepth {
		pj.containingScope = make([]scopeEntry, pj.maxDepth+1)
		pj.isArray = make([]bool, pj.maxDepth+1)
	}
	pj.depth = 0
	pj.nextStructuralIndex = 0
}

// parseMessage runs both stages over msg and leaves a single document on
// the tape.
func (pj *internalParsedJson) parseMessage(msg []byte) error {
	// The message is shared read-only; strings are always copied out into
	// the string buffer, so the caller may reuse msg afterwards.
	pj.Message = msg
	pj.initialize(len(msg))

	if !pj.findStructuralIndexes() {
		return ErrString
	}
	if code := pj.buildTape(false); code != Success {
		return code
	}
	return nil
}

// A Parser consumes a buffer holding a sequence of JSON documents one root
// value at a time. The structural index is built once by Load; each
// ParseNext call advances the structural cursor past one document.
//
// A Parser is not safe for concurrent use. The document returned by
// ParseNext borrows the parser's tape and string buffer and is valid only
// until the next ParseNext or Load call.
type Parser struct {
	pj   internalParsedJson
	docs int
}

// NewParser creates a parser with the given options.
func NewParser(opts ...ParserOption) (*Parser, error) {
	p := &Parser{}
	for _, opt := range opts {
		if err := opt(&p.pj); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load scans msg and prepares the parser for streaming consumption.
// Previously returned documents are invalidated.
func (p *Parser) Load(msg []byte) error {
	p.pj.Message = msg
	p.pj.initialize(len(msg))
	p.docs = 0
	if !p.pj.findStructuralIndexes() {
		return ErrString
	}
	return nil
}

// ParseNext builds the tape for the next document in the loaded buffer.
// It returns io.EOF once all documents have been consumed. A buffer with
// no structural content at all returns ErrEmpty on the first call.
func (p *Parser) ParseNext() (*ParsedJson, error) {
	switch code := p.pj.buildTape(true); code {
	case Success:
		p.docs++
		return &p.pj.ParsedJson, nil
	case ErrEmpty:
		if p.docs == 0 {
			return nil, ErrEmpty
		}
		return nil, io.EOF
	default:
		return nil, code
	}
}
