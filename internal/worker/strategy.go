package worker

import (
	"math"
	"math/rand"

	"fleet-core/pkg/binance"
)

const imbalanceEpsilon = 0.01

// ExposureBias summarizes account-wide positioning. NextSide is the
// contrarian direction dynamic strategies should prefer; it is always BUY
// or SELL once computed.
type ExposureBias struct {
	LongVolume  float64 // leverage-weighted notional of long positions
	ShortVolume float64
	NextSide    string
}

// ComputeBias aggregates every account position into a leverage-weighted
// notional per side and derives the contrarian entry side. A near-balanced
// book (imbalance below 1%) yields a random side.
func ComputeBias(positions []binance.PositionRisk, pick func(n int) int) ExposureBias {
	if pick == nil {
		pick = rand.Intn
	}
	random := func() string {
		if pick(2) == 0 {
			return "BUY"
		}
		return "SELL"
	}

	var bias ExposureBias
	var longCount, shortCount int
	for _, pos := range positions {
		amt := pos.Amt()
		if amt == 0 {
			continue
		}
		if amt > 0 {
			longCount++
		} else {
			shortCount++
		}
		price := pos.Mark()
		if price <= 0 {
			continue
		}
		effective := math.Abs(amt) * price * pos.Lev()
		if amt > 0 {
			bias.LongVolume += effective
		} else {
			bias.ShortVolume += effective
		}
	}

	total := bias.LongVolume + bias.ShortVolume
	switch {
	case total > 0:
		imbalance := math.Abs(bias.LongVolume-bias.ShortVolume) / total
		if imbalance < imbalanceEpsilon {
			bias.NextSide = random()
		} else if bias.LongVolume > bias.ShortVolume {
			bias.NextSide = "SELL"
		} else {
			bias.NextSide = "BUY"
		}
	case longCount > shortCount:
		bias.NextSide = "SELL"
	case shortCount > longCount:
		bias.NextSide = "BUY"
	default:
		bias.NextSide = random()
	}
	return bias
}

// ResolveSide maps an entry signal to the side a worker should open, or ""
// for no trade. Pure except for the injected random pick used when the bias
// carries no information.
func ResolveSide(cfg *Config, entry string, bias ExposureBias, pick func(n int) int) string {
	if entry != "BUY" && entry != "SELL" {
		return ""
	}
	if pick == nil {
		pick = rand.Intn
	}

	switch cfg.Strategy.Kind {
	case StaticSignal:
		return entry
	case StaticReverse:
		// Trade against the account's preferred side.
		if bias.NextSide == "BUY" {
			return "SELL"
		}
		if bias.NextSide == "SELL" {
			return "BUY"
		}
		if pick(2) == 0 {
			return "BUY"
		}
		return "SELL"
	case DynamicVolume, DynamicVolatility:
		// Enter only when the signal agrees with the contrarian bias.
		if entry == bias.NextSide {
			return entry
		}
		return ""
	case DynamicCombined:
		if entry == "BUY" && sideEnabled(cfg.Strategy.BuySide) {
			return entry
		}
		if entry == "SELL" && sideEnabled(cfg.Strategy.SellSide) {
			return entry
		}
		return ""
	}
	return ""
}

func opposite(side string) string {
	if side == "BUY" {
		return "SELL"
	}
	return "BUY"
}
