package oracle

import "context"

// Signal is a directional trading hint.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalNone Signal = ""
)

// Strategy selects a candidate ranking scheme.
type Strategy string

const (
	StrategyVolume     Strategy = "volume"
	StrategyVolatility Strategy = "volatility"
)

// Oracle produces entry/exit signals and discovery candidates. Workers
// depend only on this interface; the concrete analyzer lives below.
type Oracle interface {
	EntrySignal(ctx context.Context, symbol string) Signal
	ExitSignal(ctx context.Context, symbol string) Signal
	MaxLeverage(ctx context.Context, symbol string) int
	HasExternalPosition(ctx context.Context, symbol string) bool
	RankCandidates(ctx context.Context, strategy Strategy, excluded map[string]bool) []string
}
