package oracle

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"fleet-core/pkg/binance"
	"fleet-core/pkg/logger"
)

const (
	rsiPeriod          = 14
	entryVolumeThresh  = 20.0
	exitVolumeThresh   = 100.0
	analysisCacheTTL   = 30 * time.Second
	scanCooldown       = 10 * time.Second
	candidateLimit     = 30
	volatilityLookback = 20
)

type cachedSignal struct {
	signal Signal
	at     time.Time
}

// Analyzer is the default Oracle: RSI(14) over 5m candles combined with
// price and volume deltas, candidate ranking by 24h quote volume or by
// close-to-close volatility. Analysis results are cached for 30s and full
// market scans are throttled to one per 10s.
type Analyzer struct {
	client *binance.Client
	meta   *binance.MetaCache

	mu       sync.Mutex
	cache    map[string]cachedSignal
	lastScan time.Time
	now      func() time.Time
}

// NewAnalyzer builds an analyzer over the shared REST client and metadata
// cache.
func NewAnalyzer(client *binance.Client, meta *binance.MetaCache) *Analyzer {
	return &Analyzer{
		client: client,
		meta:   meta,
		cache:  make(map[string]cachedSignal),
		now:    time.Now,
	}
}

// EntrySignal returns the direction suggested for opening on symbol.
func (a *Analyzer) EntrySignal(ctx context.Context, symbol string) Signal {
	return a.rsiSignal(ctx, symbol, entryVolumeThresh)
}

// ExitSignal returns the direction suggested once a position is armed for a
// smart exit. The higher volume threshold makes exits less jumpy than
// entries.
func (a *Analyzer) ExitSignal(ctx context.Context, symbol string) Signal {
	return a.rsiSignal(ctx, symbol, exitVolumeThresh)
}

// MaxLeverage reports the exchange leverage cap for symbol.
func (a *Analyzer) MaxLeverage(ctx context.Context, symbol string) int {
	return a.meta.MaxLeverage(ctx, symbol)
}

// HasExternalPosition reports whether the account already holds symbol
// outside this process. Query failure counts as "yes" so the caller stays
// clear of symbols it cannot verify.
func (a *Analyzer) HasExternalPosition(ctx context.Context, symbol string) bool {
	positions, err := a.client.PositionRisk(ctx, symbol)
	if err != nil {
		logger.Warnf("oracle: position check failed for %s, assuming held: %v", symbol, err)
		return true
	}
	for _, p := range positions {
		if math.Abs(p.Amt()) > 0 {
			return true
		}
	}
	return false
}

// RankCandidates returns up to 30 symbols ordered best-first for the given
// strategy, skipping excluded ones. Scans are rate limited; inside the
// cooldown window it returns nil and the caller yields its search turn.
func (a *Analyzer) RankCandidates(ctx context.Context, strategy Strategy, excluded map[string]bool) []string {
	a.mu.Lock()
	if a.now().Sub(a.lastScan) < scanCooldown {
		a.mu.Unlock()
		return nil
	}
	a.lastScan = a.now()
	a.mu.Unlock()

	var ranked []string
	switch strategy {
	case StrategyVolatility:
		ranked = a.rankByVolatility(ctx)
	default:
		ranked = a.rankByVolume(ctx)
	}

	out := ranked[:0]
	for _, s := range ranked {
		if excluded[s] {
			continue
		}
		out = append(out, s)
	}
	if len(out) > candidateLimit {
		out = out[:candidateLimit]
	}
	return out
}

// rsiSignal implements the shared heuristic: compare the last two closed
// candles' price and volume deltas against RSI extremes. The threshold is
// the volume-change percentage considered significant.
func (a *Analyzer) rsiSignal(ctx context.Context, symbol string, volThreshold float64) Signal {
	key := symbol + "_" + strconv.FormatFloat(volThreshold, 'f', -1, 64)
	a.mu.Lock()
	if c, ok := a.cache[key]; ok && a.now().Sub(c.at) < analysisCacheTTL {
		a.mu.Unlock()
		return c.signal
	}
	a.mu.Unlock()

	klines, err := a.client.Klines(ctx, symbol, "5m", 15)
	if err != nil || len(klines) < 15 {
		if err != nil {
			logger.Warnf("oracle: klines failed for %s: %v", symbol, err)
		}
		return SignalNone
	}

	// The last candle is still forming; analyze the two most recent
	// closed ones.
	prev, cur := klines[len(klines)-3], klines[len(klines)-2]

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	rsi := RSI(closes, rsiPeriod)

	priceDelta := cur.Close - prev.Close
	var volDelta float64
	if prev.Volume > 0 {
		volDelta = (cur.Volume - prev.Volume) / prev.Volume * 100
	}

	volumeUp := volDelta > volThreshold
	volumeDown := volDelta < -volThreshold

	var signal Signal
	switch {
	case rsi > 80 && priceDelta > 0 && volumeUp:
		signal = SignalSell
	case rsi < 20 && priceDelta < 0 && volumeDown:
		signal = SignalSell
	case rsi > 80 && priceDelta > 0 && volumeDown:
		signal = SignalBuy
	case rsi < 20 && priceDelta < 0 && volumeUp:
		signal = SignalBuy
	case rsi > 20 && priceDelta >= 0 && volumeDown:
		signal = SignalBuy
	case rsi < 80 && priceDelta <= 0 && volumeUp:
		signal = SignalSell
	default:
		signal = SignalNone
	}

	a.mu.Lock()
	a.cache[key] = cachedSignal{signal: signal, at: a.now()}
	a.mu.Unlock()
	return signal
}

func (a *Analyzer) rankByVolume(ctx context.Context) []string {
	tickers, err := a.client.Ticker24h(ctx)
	if err != nil {
		logger.Warnf("oracle: 24h ticker scan failed: %v", err)
		return nil
	}
	tradable := toSet(a.meta.TradableSymbols(ctx, 0))

	type entry struct {
		symbol string
		volume float64
	}
	var entries []entry
	for _, t := range tickers {
		if !tradable[t.Symbol] {
			continue
		}
		v, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		entries = append(entries, entry{symbol: t.Symbol, volume: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].volume > entries[j].volume })

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.symbol)
	}
	return out
}

func (a *Analyzer) rankByVolatility(ctx context.Context) []string {
	symbols := a.meta.TradableSymbols(ctx, candidateLimit)

	type entry struct {
		symbol string
		vol    float64
	}
	var entries []entry
	for _, s := range symbols {
		klines, err := a.client.Klines(ctx, s, "5m", volatilityLookback)
		if err != nil || len(klines) < volatilityLookback {
			continue
		}
		var changes []float64
		for i := 1; i < len(klines); i++ {
			if klines[i-1].Close > 0 {
				changes = append(changes, (klines[i].Close-klines[i-1].Close)/klines[i-1].Close*100)
			}
		}
		if v := stddev(changes); v > 0 {
			entries = append(entries, entry{symbol: s, vol: v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].vol > entries[j].vol })

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.symbol)
	}
	return out
}

// RSI computes a simple-average relative strength index over the closing
// prices. Returns the neutral 50 when there is not enough history.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var gains, losses float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func toSet(symbols []string) map[string]bool {
	m := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		m[s] = true
	}
	return m
}
