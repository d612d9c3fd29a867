package tapejson

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func serializeTestDocs() []string {
	// A repetitive document exercises the string dedupe path.
	var sb strings.Builder
	sb.WriteString(`[`)
	for i := 0; i < 200; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"server","state":"running","port":8080,"load":0.75,"tags":["a","b","server"]}`)
	}
	sb.WriteString(`]`)
	return []string{
		`{}`,
		`{"a":true}`,
		demoJSON,
		demoNdjson,
		sb.String(),
	}
}

func TestSerializeRoundtrip(t *testing.T) {
	modes := []struct {
		name string
		mode CompressMode
	}{
		{"none", CompressNone},
		{"fast", CompressFast},
		{"default", CompressDefault},
		{"best", CompressBest},
	}
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			s := NewSerializer()
			s.CompressMode(mode.mode)
			for _, doc := range serializeTestDocs() {
				pj, err := ParseND([]byte(doc), nil)
				if err != nil {
					t.Fatalf("parse: %v", err)
				}
				ser := s.Serialize(nil, *pj)

				got, err := s.Deserialize(ser, nil)
				if err != nil {
					t.Fatalf("deserialize: %v", err)
				}

				// The tape survives bit for bit unless strings were
				// deduplicated, so compare decoded content.
				a := pj.Iter()
				b := got.Iter()
				va, err := a.Interface()
				if err != nil {
					t.Fatal(err)
				}
				vb, err := b.Interface()
				if err != nil {
					t.Fatal(err)
				}
				if d := cmp.Diff(va, vb); d != "" {
					t.Errorf("content changed (-original +deserialized):\n%s", d)
				}
			}
		})
	}
}

func TestSerializeReuse(t *testing.T) {
	s := NewSerializer()
	pj, err := Parse([]byte(demoJSON), nil)
	if err != nil {
		t.Fatal(err)
	}
	var dst *ParsedJson
	// Reusing the serializer and destination must not corrupt output.
	for n := 0; n < 3; n++ {
		ser := s.Serialize(nil, *pj)
		dst, err = s.Deserialize(ser, dst)
		if err != nil {
			t.Fatalf("pass %d: %v", n, err)
		}
		a := pj.Iter()
		b := dst.Iter()
		va, err := a.Interface()
		if err != nil {
			t.Fatal(err)
		}
		vb, err := b.Interface()
		if err != nil {
			t.Fatal(err)
		}
		if d := cmp.Diff(va, vb); d != "" {
			t.Fatalf("pass %d: content changed:\n%s", n, d)
		}
	}
}

func TestDeserializeBadInput(t *testing.T) {
	s := NewSerializer()
	if _, err := s.Deserialize([]byte{}, nil); err == nil {
		t.Error("empty input: expected error")
	}
	if _, err := s.Deserialize([]byte{2, 0, 0}, nil); err == nil {
		t.Error("bad version: expected error")
	}
	pj, err := Parse([]byte(demoJSON), nil)
	if err != nil {
		t.Fatal(err)
	}
	ser := s.Serialize(nil, *pj)
	if _, err := s.Deserialize(ser[:len(ser)/2], nil); err == nil {
		t.Error("truncated input: expected error")
	}
}
