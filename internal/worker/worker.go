package worker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-core/internal/coord"
	"fleet-core/internal/events"
	"fleet-core/internal/feed"
	"fleet-core/internal/oracle"
	"fleet-core/pkg/binance"
	"fleet-core/pkg/logger"
)

const (
	tickInterval      = time.Second
	marginInterval    = 10 * time.Second
	exposureInterval  = 30 * time.Second
	reconcileInterval = 30 * time.Second
	tradeCooldown     = 30 * time.Second
	closeCooldown     = 30 * time.Second
	pyramidCooldown   = 60 * time.Second
	errorLogInterval  = 10 * time.Second
	drainTimeout      = 10 * time.Second
	orderSettleDelay  = time.Second

	marginSafetyThreshold = 1.15
	earlyReversalROI      = -50.0
)

// Exchange is the slice of the signed client a worker calls.
type Exchange interface {
	PositionRisk(ctx context.Context, symbol string) ([]binance.PositionRisk, error)
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*binance.OrderAck, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	MarginSafety(ctx context.Context) (binance.MarginSafety, error)
	TotalAndAvailableBalance(ctx context.Context) (total, available float64, err error)
}

// Prices is the slice of the feed manager a worker uses.
type Prices interface {
	Price(ctx context.Context, symbol string) (float64, error)
	Subscribe(symbol string, handler feed.PriceHandler)
	Unsubscribe(symbol string)
}

// Meta is the slice of the metadata cache a worker uses.
type Meta interface {
	StepSize(ctx context.Context, symbol string) float64
}

// Deps bundles the shared singletons a worker runs against.
type Deps struct {
	Exchange    Exchange
	Prices      Prices
	Meta        Meta
	Oracle      oracle.Oracle
	Registry    *coord.Registry
	Coordinator *coord.Coordinator
	Bus         *events.Bus
}

// Status is a read-only snapshot for the operational surface.
type Status struct {
	ID       string   `json:"id"`
	Strategy string   `json:"strategy"`
	Symbol   string   `json:"symbol,omitempty"`
	State    string   `json:"state"`
	Side     string   `json:"side,omitempty"`
	Qty      float64  `json:"qty,omitempty"`
	Entry    float64  `json:"entry,omitempty"`
	ROI      *float64 `json:"roi,omitempty"`
}

// Worker runs one instrument slot: discover or reuse a symbol, open a
// position, manage it, close it. All position state is owned by the
// worker's own goroutine; Stop coordinates through the context and the
// processing mutex.
type Worker struct {
	id   string
	cfg  Config
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// processing is held for the duration of any tick that talks to the
	// exchange; Stop acquires it (bounded) before force-closing.
	processing sync.Mutex

	mu     sync.Mutex
	symbol string
	pos    *Position

	bias         ExposureBias
	promoted     <-chan struct{}
	lastMargin   time.Time
	lastExposure time.Time
	lastRecon    time.Time
	lastTrade    time.Time
	lastClose    time.Time
	lastErrorLog time.Time

	sleep func(time.Duration)
	now   func() time.Time
	pick  func(n int) int
}

// New builds a worker; Start launches its loop.
func New(cfg Config, deps Deps) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		id:     uuid.NewString()[:8],
		cfg:    cfg,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		sleep:  time.Sleep,
		now:    time.Now,
		pick:   rand.Intn,
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Symbol returns the currently held symbol, if any.
func (w *Worker) Symbol() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.symbol
}

// Start launches the tick loop.
func (w *Worker) Start() {
	go w.run()
	w.deps.Bus.Publish(events.EventWorkerStarted, events.WorkerEvent{
		WorkerID: w.id, Symbol: w.cfg.Symbol, At: w.now(),
	})
	logger.Infof("worker %s started (%s)", w.id, w.cfg.Strategy.Kind)
}

// Stop cancels the loop, waits up to 10s for in-flight processing to drain,
// then closes any open position and releases the instrument.
func (w *Worker) Stop(reason string) {
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(drainTimeout):
		logger.Warnf("worker %s: drain timed out, forcing stop", w.id)
	}

	// Final cleanup runs on the caller's goroutine; the loop has exited
	// (or overrun its drain budget and will fail its next API call on the
	// cancelled context).
	ctx := context.Background()
	w.mu.Lock()
	pos := w.pos
	symbol := w.symbol
	w.mu.Unlock()
	if pos != nil {
		if err := w.closePosition(ctx, "stopped: "+reason); err != nil {
			logger.Errorf("worker %s: close on stop failed for %s: %v", w.id, symbol, err)
		}
	}
	// Drop out of search arbitration so a queued or searching id is never
	// promoted after it is gone.
	w.deps.Coordinator.Forget(w.id)
	if symbol != "" {
		w.releaseSymbol()
	}
	w.deps.Bus.Publish(events.EventWorkerStopped, events.WorkerEvent{
		WorkerID: w.id, Symbol: symbol, Reason: reason, At: w.now(),
	})
	logger.Infof("worker %s stopped: %s", w.id, reason)
}

// Status reports the worker's current state. The price lookup happens after
// the state snapshot so a slow feed never stalls the worker loop on w.mu.
func (w *Worker) Status() Status {
	w.mu.Lock()
	s := Status{
		ID:       w.id,
		Strategy: string(w.cfg.Strategy.Kind),
		Symbol:   w.symbol,
		State:    "searching",
	}
	if w.symbol != "" {
		s.State = "waiting"
	}
	var pos *Position
	if w.pos != nil {
		s.State = "open"
		s.Side = w.pos.Side
		s.Qty = w.pos.Qty
		s.Entry = w.pos.Entry
		snap := *w.pos
		pos = &snap
	}
	w.mu.Unlock()

	if pos != nil {
		if price, err := w.deps.Prices.Price(context.Background(), s.Symbol); err == nil {
			roi := pos.ROI(price, w.cfg.Leverage)
			s.ROI = &roi
		}
	}
	return s
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
		w.processing.Lock()
		w.safeTick()
		w.processing.Unlock()
	}
}

// safeTick wraps one tick in a recover so a single failure never kills the
// loop; repeated errors are logged at most every 10s.
func (w *Worker) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			if w.now().Sub(w.lastErrorLog) > errorLogInterval {
				logger.Errorf("worker %s: tick panic: %v", w.id, r)
				w.lastErrorLog = w.now()
			}
		}
	}()
	if err := w.tick(w.ctx); err != nil && w.ctx.Err() == nil {
		if w.now().Sub(w.lastErrorLog) > errorLogInterval {
			logger.Errorf("worker %s: %v", w.id, err)
			w.lastErrorLog = w.now()
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	now := w.now()

	// 1. Margin circuit breaker.
	if now.Sub(w.lastMargin) > marginInterval {
		w.lastMargin = now
		if tripped, err := w.checkMarginSafety(ctx); err != nil {
			return fmt.Errorf("margin check: %w", err)
		} else if tripped {
			return nil
		}
	}

	// 2. Account-wide exposure bias for dynamic side resolution.
	if now.Sub(w.lastExposure) > exposureInterval {
		w.lastExposure = now
		if positions, err := w.deps.Exchange.PositionRisk(ctx, ""); err == nil {
			w.bias = ComputeBias(positions, w.pick)
		}
	}

	// 3. Acquire an instrument.
	w.mu.Lock()
	symbol := w.symbol
	pos := w.pos
	w.mu.Unlock()
	if symbol == "" {
		return w.acquire(ctx)
	}

	// 4/5. Trade the held instrument.
	if now.Sub(w.lastRecon) > reconcileInterval {
		w.lastRecon = now
		if err := w.reconcile(ctx); err != nil {
			return fmt.Errorf("reconcile %s: %w", symbol, err)
		}
		w.mu.Lock()
		pos = w.pos
		w.mu.Unlock()
	}

	if pos == nil {
		if now.Sub(w.lastTrade) > tradeCooldown && now.Sub(w.lastClose) > tradeCooldown {
			return w.tryEnter(ctx)
		}
		return nil
	}
	return w.manage(ctx)
}

// checkMarginSafety closes everything when account equity dips toward the
// maintenance requirement.
func (w *Worker) checkMarginSafety(ctx context.Context) (bool, error) {
	ms, err := w.deps.Exchange.MarginSafety(ctx)
	if err != nil {
		return false, err
	}
	if !ms.RatioValid || ms.Ratio > marginSafetyThreshold {
		return false, nil
	}
	logger.Warnf("worker %s: margin ratio %.3f <= %.2f, closing positions", w.id, ms.Ratio, marginSafetyThreshold)
	w.deps.Bus.Publish(events.EventMarginAlert, events.MarginEvent{
		Ratio: ms.Ratio, Threshold: marginSafetyThreshold, At: w.now(),
	})
	w.mu.Lock()
	pos := w.pos
	w.mu.Unlock()
	if pos != nil {
		if err := w.closePosition(ctx, fmt.Sprintf("margin safety (ratio %.3f)", ms.Ratio)); err != nil {
			return true, err
		}
	}
	return true, nil
}

// acquire obtains an instrument: static workers re-claim their fixed
// symbol, dynamic workers go through search arbitration.
func (w *Worker) acquire(ctx context.Context) error {
	if w.cfg.Static() {
		return w.claimSymbol(ctx, w.cfg.Symbol)
	}

	if w.promoted != nil {
		select {
		case <-w.promoted:
			w.promoted = nil
		default:
			return nil // still waiting for promotion
		}
	}

	granted, ch := w.deps.Coordinator.RequestSearch(w.id)
	if !granted {
		w.promoted = ch
		return nil
	}

	symbol := w.discover(ctx)
	if symbol == "" {
		w.deps.Coordinator.FinishSearch(w.id, "", false)
		return nil
	}
	if err := w.claimSymbol(ctx, symbol); err != nil {
		w.deps.Coordinator.FinishSearch(w.id, "", false)
		return err
	}
	w.deps.Coordinator.FinishSearch(w.id, symbol, true)
	logger.Infof("worker %s: tracking %s", w.id, symbol)
	return nil
}

// discover scans ranked candidates for one with a usable entry signal.
func (w *Worker) discover(ctx context.Context) string {
	strategy := oracle.StrategyVolume
	if w.cfg.Strategy.Kind == DynamicVolatility {
		strategy = oracle.StrategyVolatility
	}

	excluded := make(map[string]bool)
	for _, s := range w.deps.Registry.Active() {
		excluded[s] = true
	}

	var usable []string
	for _, symbol := range w.deps.Oracle.RankCandidates(ctx, strategy, excluded) {
		if !w.deps.Coordinator.SymbolAvailable(symbol) {
			continue
		}
		if w.deps.Oracle.MaxLeverage(ctx, symbol) < w.cfg.Leverage {
			continue
		}
		if w.deps.Oracle.HasExternalPosition(ctx, symbol) {
			continue
		}
		if s := w.deps.Oracle.EntrySignal(ctx, symbol); s == oracle.SignalBuy || s == oracle.SignalSell {
			usable = append(usable, symbol)
		}
	}
	if len(usable) == 0 {
		return ""
	}
	return usable[w.pick(len(usable))]
}

// claimSymbol registers the symbol, subscribes its price stream, and
// re-verifies no external position appeared after claiming.
func (w *Worker) claimSymbol(ctx context.Context, symbol string) error {
	if w.deps.Oracle.HasExternalPosition(ctx, symbol) {
		return fmt.Errorf("%s already has an exchange-side position", symbol)
	}
	if !w.deps.Registry.Register(symbol, w.id) {
		return fmt.Errorf("%s claimed by another worker first", symbol)
	}
	w.mu.Lock()
	w.symbol = symbol
	w.mu.Unlock()
	w.deps.Coordinator.MarkHolding(w.id)
	w.deps.Prices.Subscribe(symbol, nil)

	// Post-claim re-check closes most of the discovery race window.
	if w.deps.Oracle.HasExternalPosition(ctx, symbol) {
		w.releaseSymbol()
		return fmt.Errorf("%s grew an external position after claim", symbol)
	}
	return nil
}

// releaseSymbol forgets the instrument entirely so the worker re-enters
// discovery on its next tick.
func (w *Worker) releaseSymbol() {
	w.mu.Lock()
	symbol := w.symbol
	w.symbol = ""
	w.pos = nil
	w.mu.Unlock()
	if symbol == "" {
		return
	}
	w.deps.Prices.Unsubscribe(symbol)
	w.deps.Registry.Unregister(symbol, w.id)
	w.deps.Coordinator.MarkLost(w.id)
	w.deps.Coordinator.ReleaseSymbol(symbol)
}

// reconcile refreshes the in-memory Position from exchange truth. A
// vanished exchange-side position clears the local record.
func (w *Worker) reconcile(ctx context.Context) error {
	w.mu.Lock()
	symbol := w.symbol
	w.mu.Unlock()
	positions, err := w.deps.Exchange.PositionRisk(ctx, symbol)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		amt := p.Amt()
		if math.Abs(amt) == 0 {
			break
		}
		side := "BUY"
		if amt < 0 {
			side = "SELL"
		}
		w.mu.Lock()
		if w.pos == nil {
			w.pos = &Position{Symbol: symbol, OpenedAt: w.now()}
		}
		w.pos.Side = side
		w.pos.Qty = amt
		w.pos.Entry = p.Entry()
		w.mu.Unlock()
		return nil
	}
	w.mu.Lock()
	w.pos = nil
	w.mu.Unlock()
	return nil
}

// tryEnter resolves a side from the entry signal and opens a position.
func (w *Worker) tryEnter(ctx context.Context) error {
	w.mu.Lock()
	symbol := w.symbol
	w.mu.Unlock()

	entry := string(w.deps.Oracle.EntrySignal(ctx, symbol))
	side := ResolveSide(&w.cfg, entry, w.bias, w.pick)
	if side == "" {
		return nil
	}
	if w.deps.Oracle.HasExternalPosition(ctx, symbol) {
		w.releaseSymbol()
		return fmt.Errorf("%s has an external position, releasing", symbol)
	}

	opened, err := w.openPosition(ctx, side)
	if err != nil {
		w.releaseSymbol()
		return fmt.Errorf("open %s %s: %w", symbol, side, err)
	}
	if opened {
		w.lastTrade = w.now()
	}
	return nil
}

// openPosition runs the full entry sequence and commits a Position only
// after the exchange confirms it exists.
func (w *Worker) openPosition(ctx context.Context, side string) (bool, error) {
	w.mu.Lock()
	symbol := w.symbol
	w.mu.Unlock()

	if max := w.deps.Oracle.MaxLeverage(ctx, symbol); max < w.cfg.Leverage {
		return false, fmt.Errorf("%s caps leverage at %dx, need %dx", symbol, max, w.cfg.Leverage)
	}
	qty, _, err := w.sizeOrder(ctx, symbol)
	if err != nil {
		return false, err
	}
	if err := w.deps.Exchange.SetLeverage(ctx, symbol, w.cfg.Leverage); err != nil {
		return false, fmt.Errorf("set leverage: %w", err)
	}
	if err := w.deps.Exchange.CancelAllOrders(ctx, symbol); err != nil {
		return false, fmt.Errorf("cancel orders: %w", err)
	}
	w.sleep(orderSettleDelay)

	ack, err := w.deps.Exchange.PlaceMarketOrder(ctx, symbol, side, qty)
	if err != nil {
		return false, err
	}
	w.sleep(orderSettleDelay)

	// Never trust the ack alone; the position must be observable.
	if err := w.reconcile(ctx); err != nil {
		return false, err
	}
	w.mu.Lock()
	pos := w.pos
	if pos != nil {
		pos.OpenedAt = w.now()
		pos.HighWaterROI = 0
		pos.RoiArmed = false
		pos.PyramidCount = 0
		pos.PyramidBaseROI = 0
		pos.CloseAttempted = false
	}
	w.mu.Unlock()
	if pos == nil {
		return false, fmt.Errorf("order %d filled but no position observed", ack.OrderID)
	}

	w.deps.Bus.Publish(events.EventPositionOpened, events.PositionEvent{
		WorkerID: w.id, Symbol: symbol, Side: side, Qty: pos.Qty,
		Entry: pos.Entry, Leverage: w.cfg.Leverage, At: w.now(),
	})
	logger.Infof("worker %s: opened %s %s qty %v entry %v (%dx)", w.id, side, symbol, pos.Qty, pos.Entry, w.cfg.Leverage)
	return true, nil
}

// sizeOrder computes the order quantity from the combined account balance:
// floor(balance*percent*leverage/price / step) * step.
func (w *Worker) sizeOrder(ctx context.Context, symbol string) (qty, price float64, err error) {
	total, available, err := w.deps.Exchange.TotalAndAvailableBalance(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("balance: %w", err)
	}
	if total <= 0 {
		return 0, 0, fmt.Errorf("no balance")
	}
	required := total * w.cfg.Percent / 100
	if available <= 0 || required > available {
		return 0, 0, fmt.Errorf("insufficient available balance: need %.2f, have %.2f", required, available)
	}

	price, err = w.deps.Prices.Price(ctx, symbol)
	if err != nil || price <= 0 {
		return 0, 0, fmt.Errorf("no usable price for %s: %w", symbol, err)
	}

	step := w.deps.Meta.StepSize(ctx, symbol)
	qty = required * float64(w.cfg.Leverage) / price
	if step > 0 {
		qty = math.Floor(qty/step) * step
	}
	if qty <= 0 || (step > 0 && qty < step) {
		return 0, 0, fmt.Errorf("quantity %v below step %v", qty, step)
	}
	return qty, price, nil
}

// manage runs the exit and scaling rules for an open position.
func (w *Worker) manage(ctx context.Context) error {
	w.mu.Lock()
	symbol := w.symbol
	pos := w.pos
	w.mu.Unlock()
	if pos == nil {
		return nil
	}

	price, err := w.deps.Prices.Price(ctx, symbol)
	if err != nil || price <= 0 {
		return nil
	}
	roi := pos.ROI(price, w.cfg.Leverage)
	pos.Touch(roi, w.cfg.RoiTrigger)

	// Smart exit: once armed, the first exit signal closes.
	if pos.RoiArmed {
		if s := w.deps.Oracle.ExitSignal(ctx, symbol); s == oracle.SignalBuy || s == oracle.SignalSell {
			return w.closeAndMaybeReverse(ctx, pos.Side, fmt.Sprintf("smart exit at ROI %.2f%%", roi))
		}
	}

	// Early reversal on deep drawdown with a contradicting signal.
	if w.cfg.ReverseOnStop && roi <= earlyReversalROI {
		if s := string(w.deps.Oracle.EntrySignal(ctx, symbol)); s == opposite(pos.Side) {
			reason := fmt.Sprintf("early reversal at ROI %.2f%%", roi)
			if err := w.closePosition(ctx, reason); err != nil {
				return err
			}
			w.sleep(orderSettleDelay)
			if _, err := w.openPosition(ctx, s); err != nil {
				return fmt.Errorf("reversal open: %w", err)
			}
			w.lastTrade = w.now()
			return nil
		}
	}

	// Take profit / stop loss against the side-resolved thresholds.
	if tp := w.cfg.TPFor(pos.Side); tp != nil && roi >= *tp {
		return w.closeAndMaybeReverse(ctx, pos.Side, fmt.Sprintf("take profit %.2f%% (ROI %.2f%%)", *tp, roi))
	}
	if sl := w.cfg.SLFor(pos.Side); sl != nil && roi <= -*sl {
		return w.closeAndMaybeReverse(ctx, pos.Side, fmt.Sprintf("stop loss %.2f%% (ROI %.2f%%)", *sl, roi))
	}

	if w.cfg.PyramidingEnabled() {
		return w.checkPyramiding(ctx, pos, roi)
	}
	return nil
}

// checkPyramiding adds to a losing position when ROI falls a full step
// below the previous addition's base.
func (w *Worker) checkPyramiding(ctx context.Context, pos *Position, roi float64) error {
	if roi >= 0 || pos.PyramidCount >= w.cfg.PyramidCount {
		return nil
	}
	if w.now().Sub(pos.LastPyramidAt) < pyramidCooldown {
		return nil
	}
	if roi > pos.PyramidBaseROI-w.cfg.PyramidStep {
		return nil
	}

	w.mu.Lock()
	symbol := w.symbol
	w.mu.Unlock()

	qty, price, err := w.sizeOrder(ctx, symbol)
	if err != nil {
		return fmt.Errorf("pyramid sizing: %w", err)
	}
	if err := w.deps.Exchange.CancelAllOrders(ctx, symbol); err != nil {
		return fmt.Errorf("pyramid cancel: %w", err)
	}
	w.sleep(orderSettleDelay)
	if _, err := w.deps.Exchange.PlaceMarketOrder(ctx, symbol, pos.Side, qty); err != nil {
		return fmt.Errorf("pyramid order: %w", err)
	}

	w.mu.Lock()
	pos.ApplyFill(qty, price)
	pos.PyramidCount++
	pos.PyramidBaseROI = roi
	pos.LastPyramidAt = w.now()
	count := pos.PyramidCount
	entry := pos.Entry
	w.mu.Unlock()

	w.deps.Bus.Publish(events.EventPositionScaled, events.PositionEvent{
		WorkerID: w.id, Symbol: symbol, Side: pos.Side, Qty: qty,
		Entry: entry, Leverage: w.cfg.Leverage, ROI: roi,
		Reason: fmt.Sprintf("pyramid %d/%d", count, w.cfg.PyramidCount), At: w.now(),
	})
	logger.Infof("worker %s: pyramided %s %d/%d at ROI %.2f%%, entry now %v", w.id, symbol, count, w.cfg.PyramidCount, roi, entry)
	return nil
}

// closeAndMaybeReverse closes and, when configured, re-opens a BUY after
// closing a SELL.
func (w *Worker) closeAndMaybeReverse(ctx context.Context, side, reason string) error {
	if err := w.closePosition(ctx, reason); err != nil {
		return err
	}
	if w.cfg.ReverseOnSellClose && side == "SELL" {
		w.sleep(orderSettleDelay)
		if _, err := w.openPosition(ctx, "BUY"); err != nil {
			return fmt.Errorf("reverse after sell close: %w", err)
		}
		w.lastTrade = w.now()
	}
	return nil
}

// closePosition sends the reduce order and resets local state on success.
// Failed closes retry only after a 30s cooldown.
func (w *Worker) closePosition(ctx context.Context, reason string) error {
	w.mu.Lock()
	symbol := w.symbol
	pos := w.pos
	if pos == nil {
		w.mu.Unlock()
		return nil
	}
	if pos.CloseAttempted && w.now().Sub(pos.LastCloseAttempt) < closeCooldown {
		w.mu.Unlock()
		return nil
	}
	pos.CloseAttempted = true
	pos.LastCloseAttempt = w.now()
	closeSide := opposite(pos.Side)
	closeQty := math.Abs(pos.Qty)
	w.mu.Unlock()

	// The attempt marker stays set on failure so a failed close does not
	// hammer the exchange until the cooldown passes.
	if err := w.deps.Exchange.CancelAllOrders(ctx, symbol); err != nil {
		return fmt.Errorf("cancel before close: %w", err)
	}
	w.sleep(orderSettleDelay)
	if _, err := w.deps.Exchange.PlaceMarketOrder(ctx, symbol, closeSide, closeQty); err != nil {
		return fmt.Errorf("close order: %w", err)
	}

	var roi, profit float64
	price, err := w.deps.Prices.Price(ctx, symbol)
	if err != nil || price <= 0 {
		// Position is already closed on the exchange; report the fill
		// without P&L rather than a bogus -100% ROI off a zero price.
		logger.Warnf("worker %s: no exit price for %s: %v", w.id, symbol, err)
		price = 0
	} else {
		roi = pos.ROI(price, w.cfg.Leverage)
		profit = pos.Profit(price)
	}

	w.mu.Lock()
	w.pos = nil
	w.mu.Unlock()
	w.lastClose = w.now()

	w.deps.Bus.Publish(events.EventPositionClosed, events.PositionEvent{
		WorkerID: w.id, Symbol: symbol, Side: pos.Side, Qty: closeQty,
		Entry: pos.Entry, Exit: price, Leverage: w.cfg.Leverage,
		ROI: roi, Profit: profit, Reason: reason, At: w.now(),
	})
	logger.Infof("worker %s: closed %s %s, ROI %.2f%% (%s)", w.id, pos.Side, symbol, roi, reason)
	return nil
}
