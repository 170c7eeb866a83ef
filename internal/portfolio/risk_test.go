package portfolio

import (
	"math"
	"testing"
)

func TestPercentAtRisk(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		open    int
		risk    float64
		want    float64
	}{
		{"no positions", 1000, 0, 2, 0},
		{"one position", 100, 1, 2, 2},
		{"ten positions", 100, 10, 2, 20},
		{"zero risk amount", 100, 3, 0, 0},
		{"empty wallet", 0, 0, 2, 100},
		{"negative wallet", -5, 1, 2, 100},
	}
	for _, tc := range cases {
		got := PercentAtRisk(tc.balance, tc.open, tc.risk)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
