package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type stubRest struct {
	price float64
	err   error
	calls int
}

func (s *stubRest) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestPriceFreshSampleSkipsRest(t *testing.T) {
	rest := &stubRest{price: 99}
	m := NewManager(rest, false)
	m.prices.Set("BTCUSDC", 42000, time.Now())

	got, err := m.Price(context.Background(), "btcusdc")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if got != 42000 {
		t.Fatalf("price = %v, want streamed 42000", got)
	}
	if rest.calls != 0 {
		t.Fatalf("fresh sample must not hit REST, got %d calls", rest.calls)
	}
}

func TestPriceStaleFallsBackToRest(t *testing.T) {
	rest := &stubRest{price: 42100}
	m := NewManager(rest, false)
	m.prices.Set("BTCUSDC", 42000, time.Now().Add(-6*time.Second))

	got, err := m.Price(context.Background(), "BTCUSDC")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if got != 42100 {
		t.Fatalf("price = %v, want REST 42100", got)
	}
	if rest.calls != 1 {
		t.Fatalf("stale sample must hit REST once, got %d calls", rest.calls)
	}
}

func TestPriceStaleAndRestDown(t *testing.T) {
	rest := &stubRest{err: errors.New("down")}
	m := NewManager(rest, false)
	if _, err := m.Price(context.Background(), "BTCUSDC"); err == nil {
		t.Fatalf("expected error when no sample and REST is down")
	}
}

func TestDebounceDropsBurst(t *testing.T) {
	m := NewManager(nil, false)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	sub := &subscription{symbol: "ETHUSDC"}
	m.handleTick(sub, "ETHUSDC", 1.0)
	now = now.Add(50 * time.Millisecond)
	m.handleTick(sub, "ETHUSDC", 2.0)

	if got, _, _ := m.prices.Get("ETHUSDC"); got != 1.0 {
		t.Fatalf("update inside debounce window must be dropped, price = %v", got)
	}

	now = now.Add(60 * time.Millisecond)
	m.handleTick(sub, "ETHUSDC", 3.0)
	if got, _, _ := m.prices.Get("ETHUSDC"); got != 3.0 {
		t.Fatalf("update past debounce window must land, price = %v", got)
	}
}

func TestSubscribeLifecycle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// One trade message, then hold until the client closes.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"trade","s":"DOGEUSDC","p":"0.123"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(nil, false)
	m.streamURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var got []float64
	m.Subscribe("DOGEUSDC", func(symbol string, price float64) {
		mu.Lock()
		got = append(got, price)
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no price dispatched before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	if got[0] != 0.123 {
		t.Fatalf("dispatched price = %v, want 0.123", got[0])
	}
	mu.Unlock()

	if p, err := m.Price(context.Background(), "DOGEUSDC"); err != nil || p != 0.123 {
		t.Fatalf("Price = %v, %v, want cached 0.123", p, err)
	}

	m.Unsubscribe("DOGEUSDC")
	if len(m.Subscribed()) != 0 {
		t.Fatalf("unsubscribe must drop the symbol")
	}
	if _, err := m.Price(context.Background(), "DOGEUSDC"); err == nil {
		t.Fatalf("price cache must be cleared on unsubscribe")
	}
}

func TestStopAll(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(nil, false)
	m.streamURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	m.Subscribe("AUSDC", nil)
	m.Subscribe("BUSDC", nil)

	m.StopAll()
	if n := len(m.Subscribed()); n != 0 {
		t.Fatalf("StopAll left %d subscriptions", n)
	}
}
