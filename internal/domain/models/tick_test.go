package models

import "testing"

func TestLastDigitKnownQuotes(t *testing.T) {
	cases := []struct {
		quote float64
		want  int
	}{
		{0.0001, 1},
		{0.5, 0},        // exact binary fraction, pip digit 0
		{0.0625, 5},     // 625 pips
		{0.03125, 2},    // 312.5 pips
		{0.21875, 7},    // 2187.5 pips
		{0.00390625, 9}, // 39.0625 pips
		{1.23456, 5},
	}
	for _, c := range cases {
		if got := LastDigit(c.quote); got != c.want {
			t.Fatalf("LastDigit(%v) = %d, want %d", c.quote, got, c.want)
		}
	}
}

func TestLastDigitNegativeModNormalized(t *testing.T) {
	// math.Mod carries the sign of the dividend; the result must still land
	// in [0,9].
	if got := LastDigit(-0.03125); got != 7 {
		t.Fatalf("LastDigit(-0.03125) = %d, want 7", got)
	}
}

func TestLastDigitAlwaysInRange(t *testing.T) {
	for i := -40000; i < 40000; i++ {
		q := float64(i) * 0.0137
		if d := LastDigit(q); d < 0 || d > 9 {
			t.Fatalf("LastDigit(%v) = %d, out of range", q, d)
		}
	}
}

func TestTickDigitDelegates(t *testing.T) {
	tick := Tick{Market: "R_50", Quote: 1234.56785, Timestamp: 1_700_000_000}
	if got, want := tick.Digit(), LastDigit(tick.Quote); got != want {
		t.Fatalf("Digit() = %d, want %d", got, want)
	}
}
