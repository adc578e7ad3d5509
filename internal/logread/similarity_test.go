package logread

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "player is stucked", "player is stucked", 1.0},
		{"both empty", "", "", 1.0},
		{"disjoint", "abc", "xyz", 0.0},
		{"shifted overlap", "abcd", "bcde", 0.75},
		{"one empty", "abc", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRatioOCRNoise(t *testing.T) {
	a := "14:02:05 player is stucked near the gathering node"
	b := "14:02:05 p1ayer is stucked near the gathering node"
	if got := Ratio(a, b); got <= dedupThreshold {
		t.Errorf("single misread glyph should stay above the dedup threshold, got %f", got)
	}

	c := "14:02:09 combat started with mob"
	if got := Ratio(a, c); got >= dedupThreshold {
		t.Errorf("different lines should stay below the dedup threshold, got %f", got)
	}
}
