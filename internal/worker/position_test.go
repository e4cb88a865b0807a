package worker

import (
	"math"
	"testing"
)

func TestROIFormula(t *testing.T) {
	// entry=100, qty=10, leverage=10 -> invested=100. Price 101 -> profit
	// 10 -> ROI 10%.
	p := &Position{Side: "BUY", Qty: 10, Entry: 100}
	if got := p.ROI(101, 10); math.Abs(got-10) > 1e-9 {
		t.Fatalf("ROI = %v, want 10", got)
	}

	sell := &Position{Side: "SELL", Qty: -10, Entry: 100}
	if got := sell.ROI(99, 10); math.Abs(got-10) > 1e-9 {
		t.Fatalf("SELL ROI = %v, want 10", got)
	}
}

func TestROIMonotonicity(t *testing.T) {
	buy := &Position{Side: "BUY", Qty: 3, Entry: 50}
	sell := &Position{Side: "SELL", Qty: -3, Entry: 50}

	prev := buy.ROI(40, 5)
	prevSell := sell.ROI(40, 5)
	for price := 41.0; price <= 60; price++ {
		r := buy.ROI(price, 5)
		if r <= prev {
			t.Fatalf("BUY ROI not increasing at price %v: %v <= %v", price, r, prev)
		}
		prev = r

		rs := sell.ROI(price, 5)
		if rs >= prevSell {
			t.Fatalf("SELL ROI not decreasing at price %v: %v >= %v", price, rs, prevSell)
		}
		prevSell = rs
	}
}

func TestROIZeroInvested(t *testing.T) {
	p := &Position{Side: "BUY", Qty: 0, Entry: 0}
	if got := p.ROI(100, 10); got != 0 {
		t.Fatalf("ROI with zero invested = %v, want 0", got)
	}
}

func TestApplyFillWeightedAverage(t *testing.T) {
	p := &Position{Side: "BUY", Qty: 1, Entry: 100}
	p.ApplyFill(1, 80)
	if math.Abs(p.Entry-90) > 1e-9 {
		t.Fatalf("entry after equal fills = %v, want 90", p.Entry)
	}
	if p.Qty != 2 {
		t.Fatalf("qty = %v, want 2", p.Qty)
	}

	s := &Position{Side: "SELL", Qty: -2, Entry: 10}
	s.ApplyFill(6, 12)
	// (10*2 + 12*6) / 8 = 11.5, qty stays signed.
	if math.Abs(s.Entry-11.5) > 1e-9 {
		t.Fatalf("SELL entry = %v, want 11.5", s.Entry)
	}
	if s.Qty != -8 {
		t.Fatalf("SELL qty = %v, want -8", s.Qty)
	}
}

func TestTouchHighWaterAndStickyArm(t *testing.T) {
	trigger := 5.0
	p := &Position{Side: "BUY", Qty: 1, Entry: 100}

	p.Touch(3, &trigger)
	if p.RoiArmed {
		t.Fatalf("armed below trigger")
	}
	p.Touch(6, &trigger)
	if !p.RoiArmed || p.HighWaterROI != 6 {
		t.Fatalf("armed=%v hwm=%v, want armed at hwm 6", p.RoiArmed, p.HighWaterROI)
	}

	// Flag never un-sets, high water never falls.
	p.Touch(-20, &trigger)
	if !p.RoiArmed || p.HighWaterROI != 6 {
		t.Fatalf("sticky flag or high water regressed: armed=%v hwm=%v", p.RoiArmed, p.HighWaterROI)
	}

	unarmed := &Position{Side: "BUY", Qty: 1, Entry: 100}
	unarmed.Touch(1000, nil)
	if unarmed.RoiArmed {
		t.Fatalf("nil trigger must never arm")
	}
}
