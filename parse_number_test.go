package tapejson

import (
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	testCases := []struct {
		input string
		tag   Tag
		i     int64
		u     uint64
		f     float64
		code  ErrorCode
	}{
		{input: "0", tag: TagInteger, i: 0},
		{input: "1", tag: TagInteger, i: 1},
		{input: "-1", tag: TagInteger, i: -1},
		{input: "100", tag: TagInteger, i: 100},
		{input: "9223372036854775807", tag: TagInteger, i: math.MaxInt64},
		{input: "-9223372036854775808", tag: TagInteger, i: math.MinInt64},
		{input: "9223372036854775808", tag: TagUint, u: 9223372036854775808},
		{input: "18446744073709551615", tag: TagUint, u: math.MaxUint64},
		// Integers beyond uint64 fall back to float.
		{input: "18446744073709551616", tag: TagFloat, f: 18446744073709551616},
		{input: "-9223372036854775809", tag: TagFloat, f: -9223372036854775809},
		{input: "0.5", tag: TagFloat, f: 0.5},
		{input: "-0.5", tag: TagFloat, f: -0.5},
		{input: "200.2", tag: TagFloat, f: 200.2},
		{input: "1e3", tag: TagFloat, f: 1000},
		{input: "1E3", tag: TagFloat, f: 1000},
		{input: "1e-3", tag: TagFloat, f: 0.001},
		{input: "1.5e+3", tag: TagFloat, f: 1500},
		{input: "0e0", tag: TagFloat, f: 0},
		// Terminated by a structural.
		{input: "42,", tag: TagInteger, i: 42},
		{input: "42}", tag: TagInteger, i: 42},
		{input: "42 ", tag: TagInteger, i: 42},

		{input: "", code: ErrNumber},
		{input: "-", code: ErrNumber},
		{input: "+1", code: ErrNumber},
		{input: "01", code: ErrNumber},
		{input: "-01", code: ErrNumber},
		{input: ".5", code: ErrNumber},
		{input: "1.", code: ErrNumber},
		{input: "1.e5", code: ErrNumber},
		{input: "1e", code: ErrNumber},
		{input: "1e+", code: ErrNumber},
		{input: "1x", code: ErrNumber},
		{input: "1.5x", code: ErrNumber},
		{input: "0x10", code: ErrNumber},
		{input: "NaN", code: ErrNumber},
		{input: "Infinity", code: ErrNumber},
		// Outside double range.
		{input: "1e400", code: ErrNumber},
		{input: "-1e400", code: ErrNumber},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			tag, val, code := parseNumber([]byte(tc.input))
			if code != tc.code {
				t.Fatalf("got code %v want %v", code, tc.code)
			}
			if code != Success {
				return
			}
			if tag != tc.tag {
				t.Fatalf("got tag %v want %v", tag, tc.tag)
			}
			switch tag {
			case TagInteger:
				if int64(val) != tc.i {
					t.Errorf("got %d want %d", int64(val), tc.i)
				}
			case TagUint:
				if val != tc.u {
					t.Errorf("got %d want %d", val, tc.u)
				}
			case TagFloat:
				if math.Float64frombits(val) != tc.f {
					t.Errorf("got %v want %v", math.Float64frombits(val), tc.f)
				}
			}
		})
	}
}

func TestParseNumberSubnormal(t *testing.T) {
	// Values below the normal range must not error, they round toward zero.
	tag, val, code := parseNumber([]byte("5e-324"))
	if code != Success || tag != TagFloat {
		t.Fatalf("got %v/%v", tag, code)
	}
	if f := math.Float64frombits(val); f != 5e-324 {
		t.Errorf("got %v want %v", f, 5e-324)
	}
}

func TestParseRootNumberPadding(t *testing.T) {
	// A root number ending flush with the input goes through the padded
	// scratch copy.
	for _, in := range []string{"9", "942", "-1", "1.25", "1e20"} {
		pj := parseForTest(t, in)
		if code := pj.buildTape(false); code != Success {
			t.Errorf("%q: got %v", in, code)
		}
	}
}
