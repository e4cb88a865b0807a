package binance

import (
	"encoding/json"
	"fmt"
)

// ExchangeInfo is the subset of /fapi/v1/exchangeInfo the fleet consumes.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one tradable instrument.
type SymbolInfo struct {
	Symbol  string         `json:"symbol"`
	Status  string         `json:"status"`
	Filters []SymbolFilter `json:"filters"`
}

// SymbolFilter carries only the filter fields used for sizing and leverage.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	MaxLeverage string `json:"maxLeverage"`
}

// StepSize returns the LOT_SIZE step, or 0 when absent.
func (s SymbolInfo) StepSize() float64 {
	for _, f := range s.Filters {
		if f.FilterType == "LOT_SIZE" {
			return parseFloat(f.StepSize)
		}
	}
	return 0
}

// MaxLeverage returns the LEVERAGE filter cap, or 0 when absent.
func (s SymbolInfo) MaxLeverage() int {
	for _, f := range s.Filters {
		if f.FilterType == "LEVERAGE" && f.MaxLeverage != "" {
			return int(parseFloat(f.MaxLeverage))
		}
	}
	return 0
}

// Account is the futures account snapshot.
type Account struct {
	TotalMarginBalance string         `json:"totalMarginBalance"`
	TotalMaintMargin   string         `json:"totalMaintMargin"`
	Assets             []AccountAsset `json:"assets"`
}

// AccountAsset is one asset's balance view inside the account.
type AccountAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	AvailableBalance string `json:"availableBalance"`
}

// MarginSafety is the liquidation-risk view derived from Account.
type MarginSafety struct {
	MarginBalance float64
	MaintMargin   float64
	Ratio         float64
	RatioValid    bool
}

// PositionRisk is one row of /fapi/v2/positionRisk.
type PositionRisk struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	EntryPrice  string `json:"entryPrice"`
	MarkPrice   string `json:"markPrice"`
	Leverage    string `json:"leverage"`
}

// Amt returns the signed position quantity.
func (p PositionRisk) Amt() float64 { return parseFloat(p.PositionAmt) }

// Entry returns the average entry price.
func (p PositionRisk) Entry() float64 { return parseFloat(p.EntryPrice) }

// Mark returns the mark price, falling back to entry when missing.
func (p PositionRisk) Mark() float64 {
	if m := parseFloat(p.MarkPrice); m > 0 {
		return m
	}
	return p.Entry()
}

// Lev returns the applied leverage, defaulting to 1.
func (p PositionRisk) Lev() float64 {
	if l := parseFloat(p.Leverage); l > 0 {
		return l
	}
	return 1
}

// OrderAck is the order-placement response. OrderID is the success marker.
type OrderAck struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
}

// Ticker24h is one row of the 24h rolling ticker.
type Ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// Kline is a single candle.
type Kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// parseKlines decodes the positional-array kline payload.
func parseKlines(body []byte) ([]Kline, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var k Kline
		_ = json.Unmarshal(row[0], &k.OpenTime)
		k.Open = parseStringNumber(row[1])
		k.High = parseStringNumber(row[2])
		k.Low = parseStringNumber(row[3])
		k.Close = parseStringNumber(row[4])
		k.Volume = parseStringNumber(row[5])
		out = append(out, k)
	}
	return out, nil
}

func parseStringNumber(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFloat(s)
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}
