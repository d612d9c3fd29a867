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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const demoNdjson = `{"Image":{"Width":800,"Height":600,"Title":"View from 15th Floor","Thumbnail":{"Url":"http://www.example.com/image/481989943","Height":125,"Width":100},"Animated":false,"IDs":[116,943,234,38793]}}
{"Image":{"Width":801,"Height":601,"Title":"View from 15th Floor","Thumbnail":{"Url":"http://www.example.com/image/481989943","Height":125,"Width":100},"Animated":false,"IDs":[116,943,234,38793]}}
{"Image":{"Width":802,"Height":602,"Title":"View from 15th Floor","Thumbnail":{"Url":"http://www.example.com/image/481989943","Height":125,"Width":100},"Animated":false,"IDs":[116,943,234,38793]}}`

func TestParseNextCursor(t *testing.T) {
	// Two concatenated documents; after the first call the structural
	// cursor must point at the opening brace of the second.
	msg := []byte(`{"a":1}{"b":2}`)
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Load(msg); err != nil {
		t.Fatal(err)
	}

	doc, err := p.ParseNext()
	if err != nil {
		t.Fatal(err)
	}
	if p.pj.nextStructuralIndex != 5 {
		t.Errorf("cursor after first document: got %d want 5", p.pj.nextStructuralIndex)
	}
	it := doc.Iter()
	got, err := it.Interface()
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{map[string]interface{}{"a": int64(1)}}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("first document mismatch (-want +got):\n%s", d)
	}

	doc, err = p.ParseNext()
	if err != nil {
		t.Fatal(err)
	}
	if p.pj.nextStructuralIndex != 10 {
		t.Errorf("cursor after second document: got %d want 10", p.pj.nextStructuralIndex)
	}
	it2 := doc.Iter()
	got, err = it2.Interface()
	if err != nil {
		t.Fatal(err)
	}
	want = []interface{}{map[string]interface{}{"b": int64(2)}}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("second document mismatch (-want +got):\n%s", d)
	}

	if _, err = p.ParseNext(); err != io.EOF {
		t.Errorf("got %v want io.EOF", err)
	}
}

func TestParseNextRootScalars(t *testing.T) {
	// Documents may be bare scalars; the last one ends flush with the input.
	msg := []byte("true\n42\n\"x\"\nnull")
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Load(msg); err != nil {
		t.Fatal(err)
	}
	var got []interface{}
	for {
		doc, err := p.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		it := doc.Iter()
		v, err := it.Interface()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, v.([]interface{})...)
	}
	want := []interface{}{true, int64(42), "x", nil}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("mismatch (-want +got):\n%s", d)
	}
}

func TestParseNextEmpty(t *testing.T) {
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Load([]byte("   \n  ")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ParseNext(); err != ErrEmpty {
		t.Errorf("got %v want %v", err, ErrEmpty)
	}
}

func TestParseNextStreamingError(t *testing.T) {
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Load([]byte(`{"a":1}[1`)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ParseNext(); err != nil {
		t.Fatal(err)
	}
	// The unterminated array must fail even though the root-array terminal
	// check is disabled in streaming mode.
	if _, err := p.ParseNext(); err != ErrTape {
		t.Errorf("got %v want %v", err, ErrTape)
	}
}

func TestParseND(t *testing.T) {
	pj, err := ParseND([]byte(demoNdjson), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Three chained roots.
	i := pj.Iter()
	roots := 0
	widths := []int64{}
	for i.Advance() == TypeRoot {
		roots++
		typ, root, err := i.Root(nil)
		if err != nil {
			t.Fatal(err)
		}
		if typ != TypeObject {
			t.Fatalf("root %d: got %v want object", roots, typ)
		}
		obj, err := root.Object(nil)
		if err != nil {
			t.Fatal(err)
		}
		img := obj.FindKey("Image", nil)
		if img == nil {
			t.Fatal("Image key not found")
		}
		inner, err := img.Iter.Object(nil)
		if err != nil {
			t.Fatal(err)
		}
		w := inner.FindKey("Width", nil)
		if w == nil {
			t.Fatal("Width key not found")
		}
		v, err := w.Iter.Int()
		if err != nil {
			t.Fatal(err)
		}
		widths = append(widths, v)
	}
	if roots != 3 {
		t.Fatalf("got %d roots, want 3", roots)
	}
	if d := cmp.Diff([]int64{800, 801, 802}, widths); d != "" {
		t.Errorf("widths (-want +got):\n%s", d)
	}
}

func TestParseNDRoundtrip(t *testing.T) {
	pj, err := ParseND([]byte(demoNdjson), nil)
	if err != nil {
		t.Fatal(err)
	}
	i := pj.Iter()
	out, err := i.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	// Reparse the serialized output; the values must survive.
	pj2, err := ParseND(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := pj.Iter()
	b := pj2.Iter()
	va, err := a.Interface()
	if err != nil {
		t.Fatal(err)
	}
	vb, err := b.Interface()
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(va, vb); d != "" {
		t.Errorf("roundtrip mismatch (-first +second):\n%s", d)
	}
}

func TestParseNDStream(t *testing.T) {
	// 50 copies of the demo set.
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString(demoNdjson)
		sb.WriteString("\n")
	}
	res := make(chan Stream, 4)
	ParseNDStream(strings.NewReader(sb.String()), res, nil)
	docs := 0
	for got := range res {
		if got.Error == io.EOF {
			break
		}
		if got.Error != nil {
			t.Fatal(got.Error)
		}
		i := got.Value.Iter()
		for i.Advance() == TypeRoot {
			docs++
		}
	}
	if docs != 150 {
		t.Errorf("got %d documents, want 150", docs)
	}
}
