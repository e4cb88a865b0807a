package oracle

import (
	"math"
	"testing"
)

func TestRSIShortHistoryIsNeutral(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Fatalf("RSI of short history = %v, want neutral 50", got)
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if got := RSI(closes, 14); got != 100 {
		t.Fatalf("RSI of monotone rise = %v, want 100", got)
	}
}

func TestRSIAllLosses(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	if got := RSI(closes, 14); got != 0 {
		t.Fatalf("RSI of monotone fall = %v, want 0", got)
	}
}

func TestRSIBalanced(t *testing.T) {
	// Alternating +1/-1 deltas: average gain equals average loss, RSI 50.
	closes := make([]float64, 15)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] + 1
		} else {
			closes[i] = closes[i-1] - 1
		}
	}
	if got := RSI(closes, 14); math.Abs(got-50) > 1e-9 {
		t.Fatalf("RSI of balanced series = %v, want 50", got)
	}
}

func TestStddev(t *testing.T) {
	if got := stddev(nil); got != 0 {
		t.Fatalf("stddev(nil) = %v, want 0", got)
	}
	if got := stddev([]float64{5, 5, 5}); got != 0 {
		t.Fatalf("stddev of constant series = %v, want 0", got)
	}
	got := stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2) > 1e-9 {
		t.Fatalf("stddev = %v, want 2", got)
	}
}
