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
	"bufio"
	"fmt"
	"io"
	"runtime"
	"sync"
)

// Parse a block of data and return the parsed JSON.
// An optional block of previously parsed json can be supplied to reduce allocations.
func Parse(b []byte, reuse *ParsedJson, opts ...ParserOption) (*ParsedJson, error) {
	var pj *internalParsedJson
	if reuse != nil && reuse.internal != nil {
		pj = reuse.internal
		pj.ParsedJson = *reuse
		pj.ParsedJson.internal = nil
	}
	if pj == nil {
		pj = &internalParsedJson{}
	}
	for _, opt := range opts {
		if err := opt(pj); err != nil {
			return nil, err
		}
	}
	err := pj.parseMessage(b)
	if err != nil {
		return nil, err
	}
	parsed := &pj.ParsedJson
	parsed.internal = pj
	return parsed, nil
}

// ParseND will parse newline delimited JSON (or any whitespace separated
// sequence of JSON documents). All documents are chained onto one tape,
// each wrapped in a pair of root words, the way Iter expects them.
// An optional block of previously parsed json can be supplied to reduce allocations.
func ParseND(b []byte, reuse *ParsedJson, opts ...ParserOption) (*ParsedJson, error) {
	dst := reuse
	if dst == nil {
		dst = &ParsedJson{}
	}
	dst.Reset()
	dst.Message = b

	p, err := NewParser(opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Load(b); err != nil {
		return nil, err
	}
	for {
		doc, err := p.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		dst.appendTape(doc)
	}
	return dst, nil
}

// appendTape splices the tape and string buffer of src onto pj, rebasing
// the tape indexes in container words and the string buffer offsets in
// string words.
func (pj *ParsedJson) appendTape(src *ParsedJson) {
	tapeBase := uint64(len(pj.Tape))
	strBase := uint64(len(pj.Strings))
	for i := 0; i < len(src.Tape); {
		v := src.Tape[i]
		payload := v & JSONVALUEMASK
		switch Tag(v >> 56) {
		case TagRoot, TagObjectStart, TagObjectEnd, TagArrayStart, TagArrayEnd:
			// low 32 payload bits are a tape index; start tags carry the
			// child count above it
			idx := payload & JSONINDEXMASK
			rest := payload &^ uint64(JSONINDEXMASK)
			pj.Tape = append(pj.Tape, (idx+tapeBase)|rest|(v&JSONTAGMASK))
			i++
		case TagString:
			pj.Tape = append(pj.Tape, (payload+strBase)|(v&JSONTAGMASK))
			i++
		case TagInteger, TagUint, TagFloat:
			pj.Tape = append(pj.Tape, v, src.Tape[i+1])
			i += 2
		default:
			pj.Tape = append(pj.Tape, v)
			i++
		}
	}
	pj.Strings = append(pj.Strings, src.Strings...)
}

// A Stream is used to stream back results.
// Either Error or Value will be set on returned results.
type Stream struct {
	Value *ParsedJson
	Error error
}

// ParseNDStream will parse a stream and return parsed JSON to the supplied result channel.
// The method will return immediately.
// Each element is contained within a root tag.
//
//	<root>Element 1</root><root>Element 2</root>...
//
// Each result will contain an unspecified number of full elements,
// so it can be assumed that each result starts and ends with a root tag.
// The parser will keep parsing until writes to the result stream blocks.
// A stream is finished when a non-nil Error is returned.
// If the stream was parsed until the end the Error value will be io.EOF
// The channel will be closed after an error has been returned.
// An optional channel for returning consumed results can be provided.
// There is no guarantee that elements will be consumed, so always use
// non-blocking writes to the reuse channel.
func ParseNDStream(r io.Reader, res chan<- Stream, reuse <-chan *ParsedJson) {
	const tmpSize = 10 << 20
	buf := bufio.NewReaderSize(r, tmpSize)
	tmpPool := sync.Pool{New: func() interface{} {
		return make([]byte, tmpSize+1024)
	}}
	conc := (runtime.GOMAXPROCS(0) + 1) / 2
	queue := make(chan chan Stream, conc)
	go func() {
		// Forward finished items in order.
		defer close(res)
		end := false
		for items := range queue {
			i := <-items
			select {
			case res <- i:
			default:
				if !end {
					// Block if we haven't returned an error
					res <- i
				}
			}
			if i.Error != nil {
				end = true
			}
		}
	}()
	go func() {
		defer close(queue)
		for {
			tmp := tmpPool.Get().([]byte)
			tmp = tmp[:tmpSize]
			n, err := buf.Read(tmp)
			if err != nil && err != io.EOF {
				queueError(queue, err)
				return
			}
			tmp = tmp[:n]
			// Read until Newline
			if err != io.EOF {
				b, err2 := buf.ReadBytes('\n')
				if err2 != nil && err2 != io.EOF {
					queueError(queue, err2)
					return
				}
				tmp = append(tmp, b...)
				// Forward io.EOF
				err = err2
			}

			if len(tmp) > 0 {
				result := make(chan Stream, 0)
				queue <- result
				go func() {
					var reused *ParsedJson
					select {
					case v := <-reuse:
						if cap(v.Message) >= tmpSize+1024 {
							tmpPool.Put(v.Message)
							v.Message = nil
						}
						reused = v
					default:
					}
					parsed, parseErr := ParseND(tmp, reused)
					if parseErr != nil {
						result <- Stream{
							Value: nil,
							Error: fmt.Errorf("parsing input: %w", parseErr),
						}
						return
					}
					result <- Stream{
						Value: parsed,
						Error: nil,
					}
				}()
			} else {
				tmpPool.Put(tmp)
			}
			if err != nil {
				// Should only really be io.EOF
				queueError(queue, err)
				return
			}
		}
	}()
}

func queueError(queue chan chan Stream, err error) {
	result := make(chan Stream, 0)
	queue <- result
	result <- Stream{
		Value: nil,
		Error: err,
	}
}
