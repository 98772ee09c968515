package value

import (
	"math"
	"testing"
)

func TestEqualReflexiveExceptNaN(t *testing.T) {
	vals := []Value{Nil, True, False, Number(0), Number(-3.5), Empty}
	for _, v := range vals {
		if !Equal(v, v) {
			t.Errorf("Equal(%v, %v) = false, want true", v, v)
		}
	}
	nan := Number(math.NaN())
	if Equal(nan, nan) {
		t.Errorf("Equal(NaN, NaN) = true, want false")
	}
}

func TestFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil, true},
		{False, true},
		{Number(0), true},
		{True, false},
		{Number(1), false},
		{Number(-1), false},
	}
	for _, c := range cases {
		if got := c.v.Falsey(); got != c.want {
			t.Errorf("Falsey(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestHashStableForEqualNumbers(t *testing.T) {
	a := Number(3.25)
	b := Number(3.25)
	if Hash(a) != Hash(b) {
		t.Errorf("Hash differs for equal numbers")
	}
}
