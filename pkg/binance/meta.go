package binance

import (
	"context"
	"strings"
	"sync"
	"time"

	"fleet-core/pkg/logger"
)

const (
	symbolListTTL = 30 * time.Second
	filterTTL     = time.Hour

	// Degraded-mode defaults when the exchange metadata fetch fails.
	defaultMaxLeverage = 100
	defaultStepSize    = 0.001
)

// metaFetcher is the slice of Client the cache needs; narrowed for tests.
type metaFetcher interface {
	ExchangeInfo(ctx context.Context) (*ExchangeInfo, error)
}

// MetaCache memoizes exchange metadata behind TTLs: the tradable symbol list
// refreshes every 30s, per-symbol leverage caps and lot steps hourly.
// Concurrent misses may fetch twice; the duplicated call is harmless and
// cheaper than serializing every reader.
type MetaCache struct {
	client     metaFetcher
	quoteAsset string
	blacklist  map[string]struct{}

	mu         sync.Mutex
	symbols    []string
	symbolsAt  time.Time
	leverage   map[string]filterEntry
	step       map[string]filterEntry
	now        func() time.Time
}

type filterEntry struct {
	intVal   int
	floatVal float64
	at       time.Time
}

// NewMetaCache builds a cache restricted to one quote asset; blacklisted
// symbols are never reported tradable.
func NewMetaCache(client metaFetcher, quoteAsset string, blacklist []string) *MetaCache {
	bl := make(map[string]struct{}, len(blacklist))
	for _, s := range blacklist {
		bl[strings.ToUpper(s)] = struct{}{}
	}
	return &MetaCache{
		client:     client,
		quoteAsset: strings.ToUpper(quoteAsset),
		blacklist:  bl,
		leverage:   make(map[string]filterEntry),
		step:       make(map[string]filterEntry),
		now:        time.Now,
	}
}

// TradableSymbols returns the TRADING-status pairs for the configured quote
// asset, minus the blacklist. On fetch failure the previous (possibly empty)
// list is returned and the degradation is logged.
func (m *MetaCache) TradableSymbols(ctx context.Context, limit int) []string {
	m.mu.Lock()
	if m.symbols != nil && m.now().Sub(m.symbolsAt) < symbolListTTL {
		out := clip(m.symbols, limit)
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	info, err := m.client.ExchangeInfo(ctx)
	if err != nil {
		logger.Warnf("meta: symbol list fetch failed, serving stale/empty list: %v", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		return clip(m.symbols, limit)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !strings.HasSuffix(s.Symbol, m.quoteAsset) {
			continue
		}
		if _, banned := m.blacklist[s.Symbol]; banned {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}

	m.mu.Lock()
	m.symbols = symbols
	m.symbolsAt = m.now()
	m.fillFilters(info)
	out := clip(m.symbols, limit)
	m.mu.Unlock()
	return out
}

// MaxLeverage returns the leverage cap for a symbol, or the conservative
// default (100) when the metadata is unavailable.
func (m *MetaCache) MaxLeverage(ctx context.Context, symbol string) int {
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	if e, ok := m.leverage[symbol]; ok && m.now().Sub(e.at) < filterTTL {
		m.mu.Unlock()
		return e.intVal
	}
	m.mu.Unlock()

	info, err := m.client.ExchangeInfo(ctx)
	if err != nil {
		logger.Warnf("meta: leverage fetch failed for %s, assuming %dx: %v", symbol, defaultMaxLeverage, err)
		return defaultMaxLeverage
	}

	m.mu.Lock()
	m.fillFilters(info)
	e, ok := m.leverage[symbol]
	m.mu.Unlock()
	if !ok {
		return defaultMaxLeverage
	}
	return e.intVal
}

// StepSize returns the lot step for a symbol, or the conservative default
// (0.001) when the metadata is unavailable.
func (m *MetaCache) StepSize(ctx context.Context, symbol string) float64 {
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	if e, ok := m.step[symbol]; ok && m.now().Sub(e.at) < filterTTL {
		m.mu.Unlock()
		return e.floatVal
	}
	m.mu.Unlock()

	info, err := m.client.ExchangeInfo(ctx)
	if err != nil {
		logger.Warnf("meta: step size fetch failed for %s, assuming %v: %v", symbol, defaultStepSize, err)
		return defaultStepSize
	}

	m.mu.Lock()
	m.fillFilters(info)
	e, ok := m.step[symbol]
	m.mu.Unlock()
	if !ok || e.floatVal <= 0 {
		return defaultStepSize
	}
	return e.floatVal
}

// fillFilters caches filters for every symbol in one fetch. Caller holds mu.
func (m *MetaCache) fillFilters(info *ExchangeInfo) {
	at := m.now()
	for _, s := range info.Symbols {
		lev := s.MaxLeverage()
		if lev == 0 {
			lev = defaultMaxLeverage
		}
		m.leverage[s.Symbol] = filterEntry{intVal: lev, at: at}
		step := s.StepSize()
		if step <= 0 {
			step = defaultStepSize
		}
		m.step[s.Symbol] = filterEntry{floatVal: step, at: at}
	}
}

func clip(symbols []string, limit int) []string {
	if limit <= 0 || limit >= len(symbols) {
		return symbols
	}
	return symbols[:limit]
}
