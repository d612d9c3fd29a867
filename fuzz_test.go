//go:build go1.18
// +build go1.18

package tapejson

import (
	"bytes"
	"testing"
)

// FuzzParse checks that whatever the machine accepts can be re-serialized
// and reparsed to an identical tape, and that rejected inputs never leave a
// readable document behind.
func FuzzParse(f *testing.F) {
	for _, seed := range []string{
		`{}`, `[]`, `[1,2,3]`, `{"a":true}`, demoJSON,
		`"x"`, `42`, `true`, `[`, `[1`, `{"a"`, `nul`, `1e400`,
		"[\"\\ud834\\udd1e\"]", `{"a":{"b":[1.5,-2,18446744073709551615]}}`,
	} {
		f.Add([]byte(seed))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		pj, err := Parse(data, nil)
		if err != nil {
			if pj != nil {
				t.Fatalf("rejected input %q returned a document: %v", data, err)
			}
			return
		}
		i := pj.Iter()
		out, err := i.MarshalJSON()
		if err != nil {
			t.Fatalf("accepted input %q did not serialize: %v", data, err)
		}
		// Number formatting may change the first generation; the second
		// must be a fixed point.
		pj2, err := Parse(out, nil)
		if err != nil {
			t.Fatalf("serialized form %q did not reparse: %v", out, err)
		}
		i2 := pj2.Iter()
		out2, err := i2.MarshalJSON()
		if err != nil {
			t.Fatalf("second serialization of %q failed: %v", data, err)
		}
		pj3, err := Parse(out2, nil)
		if err != nil {
			t.Fatalf("second reparse of %q failed: %v", out2, err)
		}
		if !equalTapes(pj2.Tape, pj3.Tape) || !bytes.Equal(pj2.Strings, pj3.Strings) {
			t.Fatalf("tape changed through roundtrip of %q", data)
		}
	})
}

func equalTapes(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
