package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleet-core/pkg/cache"
	"fleet-core/pkg/logger"
)

const (
	debounceInterval = 100 * time.Millisecond
	reconnectDelay   = 5 * time.Second
	stalenessBound   = 5 * time.Second
	dispatchWorkers  = 8
	dispatchQueue    = 256
)

// PriceHandler receives debounced last-trade prices. Handlers run on the
// dispatch pool, never on a connection's read loop.
type PriceHandler func(symbol string, price float64)

// restFallback is the slice of the REST client the feed needs when a stream
// price is stale.
type restFallback interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

type subscription struct {
	symbol  string
	handler PriceHandler
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager keeps zero-or-one streaming connection per subscribed symbol. Read
// loops reconnect after a fixed delay until unsubscribed; price callbacks are
// debounced per symbol and dispatched on a bounded pool so a slow strategy
// never stalls a read loop.
type Manager struct {
	streamURL string
	dialer    *websocket.Dialer
	rest      restFallback

	prices *cache.PriceCache

	mu       sync.Mutex
	subs     map[string]*subscription
	lastEmit map[string]time.Time

	queue    chan func()
	poolOnce sync.Once
	now      func() time.Time
}

// NewManager builds a feed manager over the futures trade streams.
func NewManager(rest restFallback, testnet bool) *Manager {
	host := "fstream.binance.com"
	if testnet {
		host = "stream.binancefuture.com"
	}
	return &Manager{
		streamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
		rest:      rest,
		prices:    cache.New(),
		subs:      make(map[string]*subscription),
		lastEmit:  make(map[string]time.Time),
		queue:     make(chan func(), dispatchQueue),
		now:       time.Now,
	}
}

// Subscribe opens a trade-stream connection for symbol and registers the
// handler. Subscribing an already-subscribed symbol replaces its handler.
func (m *Manager) Subscribe(symbol string, handler PriceHandler) {
	symbol = strings.ToUpper(symbol)
	m.poolOnce.Do(m.startPool)

	m.mu.Lock()
	if existing, ok := m.subs[symbol]; ok {
		existing.handler = handler
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{symbol: symbol, handler: handler, cancel: cancel, done: make(chan struct{})}
	m.subs[symbol] = sub
	m.mu.Unlock()

	go m.run(ctx, sub)
}

// Unsubscribe closes the symbol's connection and drops its state.
func (m *Manager) Unsubscribe(symbol string) {
	symbol = strings.ToUpper(symbol)
	m.mu.Lock()
	sub, ok := m.subs[symbol]
	if ok {
		delete(m.subs, symbol)
		delete(m.lastEmit, symbol)
	}
	m.mu.Unlock()
	if ok {
		m.prices.Delete(symbol)
		sub.cancel()
		<-sub.done
	}
}

// StopAll unsubscribes every symbol.
func (m *Manager) StopAll() {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.subs))
	for s := range m.subs {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()
	for _, s := range symbols {
		m.Unsubscribe(s)
	}
}

// Price returns the streamed price when it is younger than the staleness
// bound, otherwise falls back to a synchronous REST query.
func (m *Manager) Price(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)
	if price, at, ok := m.prices.Get(symbol); ok && m.now().Sub(at) < stalenessBound {
		return price, nil
	}
	if m.rest == nil {
		return 0, fmt.Errorf("no fresh price for %s", symbol)
	}
	return m.rest.TickerPrice(ctx, symbol)
}

// Subscribed returns the currently subscribed symbols.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for s := range m.subs {
		out = append(out, s)
	}
	return out
}

// run owns one symbol's connection lifecycle: connect, read until error,
// wait, reconnect. Exits only on unsubscribe.
func (m *Manager) run(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.readLoop(ctx, sub); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("feed: %s stream dropped, reconnecting in %s: %v", sub.symbol, reconnectDelay, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, sub *subscription) error {
	stream := fmt.Sprintf("%s/%s@trade", m.streamURL, strings.ToLower(sub.symbol))
	conn, _, err := m.dialer.DialContext(ctx, stream, nil)
	if err != nil {
		return fmt.Errorf("dial trade stream: %w", err)
	}
	defer conn.Close()

	// Close the socket when the subscription is cancelled so ReadMessage
	// unblocks promptly.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		symbol, price, err := parseTradeMessage(msg)
		if err != nil {
			logger.Warnf("feed: %s trade parse error: %v", sub.symbol, err)
			continue
		}
		if symbol == "" {
			symbol = sub.symbol
		}
		m.handleTick(sub, symbol, price)
	}
}

// handleTick stores the sample and dispatches the handler unless the update
// arrived within the debounce window of the previous one.
func (m *Manager) handleTick(sub *subscription, symbol string, price float64) {
	now := m.now()
	m.mu.Lock()
	if last, ok := m.lastEmit[symbol]; ok && now.Sub(last) < debounceInterval {
		m.mu.Unlock()
		return
	}
	m.lastEmit[symbol] = now
	handler := sub.handler
	m.mu.Unlock()
	m.prices.Set(symbol, price, now)

	if handler == nil {
		return
	}
	select {
	case m.queue <- func() { handler(symbol, price) }:
	default:
		// Pool saturated; the next tick carries a fresher price anyway.
	}
}

func (m *Manager) startPool() {
	for i := 0; i < dispatchWorkers; i++ {
		go func() {
			for job := range m.queue {
				job()
			}
		}()
	}
}

func parseTradeMessage(msg []byte) (symbol string, price float64, err error) {
	var raw struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return "", 0, err
	}
	p, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad trade price %q", raw.Price)
	}
	return strings.ToUpper(raw.Symbol), p, nil
}
