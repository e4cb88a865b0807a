package worker

import (
	"math"
	"time"
)

// Position is the in-memory record of one open position. It exists only
// while a confirmed exchange-side position exists; "no position" is a nil
// pointer, never a zeroed struct. Mutated only by the owning worker's
// goroutine.
type Position struct {
	Symbol   string
	Side     string  // BUY or SELL
	Qty      float64 // signed, matches Side
	Entry    float64
	OpenedAt time.Time

	HighWaterROI float64
	RoiArmed     bool // sticky once the ROI trigger has been reached

	PyramidCount   int
	PyramidBaseROI float64
	LastPyramidAt  time.Time

	CloseAttempted   bool
	LastCloseAttempt time.Time
}

// Profit returns the unrealized PnL at price.
func (p *Position) Profit(price float64) float64 {
	if p.Side == "BUY" {
		return (price - p.Entry) * math.Abs(p.Qty)
	}
	return (p.Entry - price) * math.Abs(p.Qty)
}

// ROI returns the leverage-adjusted percentage return at price:
// profit / (entry * |qty| / leverage) * 100.
func (p *Position) ROI(price float64, leverage int) float64 {
	invested := p.Entry * math.Abs(p.Qty) / float64(leverage)
	if invested <= 0 {
		return 0
	}
	return p.Profit(price) / invested * 100
}

// ApplyFill folds an additional fill into the position, recomputing the
// entry as the quantity-weighted average across all fills.
func (p *Position) ApplyFill(qty, price float64) {
	oldAbs := math.Abs(p.Qty)
	total := oldAbs + qty
	if total <= 0 {
		return
	}
	p.Entry = (p.Entry*oldAbs + price*qty) / total
	if p.Side == "BUY" {
		p.Qty += qty
	} else {
		p.Qty -= qty
	}
}

// Touch updates the high-water ROI and arms the sticky exit flag once roi
// has ever reached trigger. The flag never un-sets.
func (p *Position) Touch(roi float64, trigger *float64) {
	if roi > p.HighWaterROI {
		p.HighWaterROI = roi
	}
	if trigger != nil && p.HighWaterROI >= *trigger {
		p.RoiArmed = true
	}
}
