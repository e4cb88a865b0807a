package binance

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubFetcher struct {
	info  *ExchangeInfo
	err   error
	calls int
}

func (s *stubFetcher) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

func testInfo() *ExchangeInfo {
	return &ExchangeInfo{Symbols: []SymbolInfo{
		{Symbol: "BTCUSDC", Status: "TRADING", Filters: []SymbolFilter{
			{FilterType: "LOT_SIZE", StepSize: "0.001"},
			{FilterType: "LEVERAGE", MaxLeverage: "125"},
		}},
		{Symbol: "ETHUSDC", Status: "TRADING"},
		{Symbol: "XRPUSDC", Status: "TRADING"},
		{Symbol: "DOGEUSDC", Status: "BREAK"},
		{Symbol: "BTCUSDT", Status: "TRADING"},
	}}
}

func TestTradableSymbolsFiltersAndCaches(t *testing.T) {
	fetcher := &stubFetcher{info: testInfo()}
	m := NewMetaCache(fetcher, "USDC", []string{"ethusdc"})

	base := time.Now()
	m.now = func() time.Time { return base }

	got := m.TradableSymbols(context.Background(), 0)
	want := []string{"BTCUSDC", "XRPUSDC"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}

	// Inside the TTL the cached list is served without refetching.
	base = base.Add(symbolListTTL - time.Second)
	m.TradableSymbols(context.Background(), 0)
	if fetcher.calls != 1 {
		t.Fatalf("want 1 fetch inside TTL, got %d", fetcher.calls)
	}

	// Past the TTL the list is refreshed.
	base = base.Add(2 * time.Second)
	m.TradableSymbols(context.Background(), 0)
	if fetcher.calls != 2 {
		t.Fatalf("want refetch after TTL, got %d calls", fetcher.calls)
	}
}

func TestTradableSymbolsLimit(t *testing.T) {
	m := NewMetaCache(&stubFetcher{info: testInfo()}, "USDC", nil)
	got := m.TradableSymbols(context.Background(), 1)
	if len(got) != 1 || got[0] != "BTCUSDC" {
		t.Fatalf("want [BTCUSDC], got %v", got)
	}
}

func TestTradableSymbolsServesStaleOnFailure(t *testing.T) {
	fetcher := &stubFetcher{info: testInfo()}
	m := NewMetaCache(fetcher, "USDC", nil)

	base := time.Now()
	m.now = func() time.Time { return base }

	first := m.TradableSymbols(context.Background(), 0)
	if len(first) != 3 {
		t.Fatalf("want 3 symbols, got %v", first)
	}

	fetcher.err = errors.New("connection refused")
	base = base.Add(symbolListTTL + time.Second)
	stale := m.TradableSymbols(context.Background(), 0)
	if len(stale) != 3 {
		t.Fatalf("want stale list on failure, got %v", stale)
	}
}

func TestFiltersFilledFromSymbolListFetch(t *testing.T) {
	fetcher := &stubFetcher{info: testInfo()}
	m := NewMetaCache(fetcher, "USDC", nil)

	m.TradableSymbols(context.Background(), 0)

	// Both lookups must hit the filter cache populated by the list fetch.
	if lev := m.MaxLeverage(context.Background(), "btcusdc"); lev != 125 {
		t.Fatalf("want 125x, got %d", lev)
	}
	if step := m.StepSize(context.Background(), "BTCUSDC"); step != 0.001 {
		t.Fatalf("want 0.001, got %v", step)
	}
	if fetcher.calls != 1 {
		t.Fatalf("want filters served from cache, got %d fetches", fetcher.calls)
	}
}

func TestFilterDefaultsOnFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("timeout")}
	m := NewMetaCache(fetcher, "USDC", nil)

	if lev := m.MaxLeverage(context.Background(), "BTCUSDC"); lev != defaultMaxLeverage {
		t.Fatalf("want default %d, got %d", defaultMaxLeverage, lev)
	}
	if step := m.StepSize(context.Background(), "BTCUSDC"); step != defaultStepSize {
		t.Fatalf("want default %v, got %v", defaultStepSize, step)
	}
}

func TestFilterDefaultsForMissingFilters(t *testing.T) {
	// ETHUSDC carries no filters at all; defaults apply per field.
	m := NewMetaCache(&stubFetcher{info: testInfo()}, "USDC", nil)

	if lev := m.MaxLeverage(context.Background(), "ETHUSDC"); lev != defaultMaxLeverage {
		t.Fatalf("want default %d, got %d", defaultMaxLeverage, lev)
	}
	if step := m.StepSize(context.Background(), "ETHUSDC"); step != defaultStepSize {
		t.Fatalf("want default %v, got %v", defaultStepSize, step)
	}
}
