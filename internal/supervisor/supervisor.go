package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"fleet-core/internal/coord"
	"fleet-core/internal/events"
	"fleet-core/internal/feed"
	"fleet-core/internal/oracle"
	"fleet-core/internal/worker"
	"fleet-core/pkg/binance"
	"fleet-core/pkg/db"
	"fleet-core/pkg/logger"
)

const maxWorkers = 50

// Deps are the shared singletons the supervisor hands to every worker.
type Deps struct {
	Client      *binance.Client
	Meta        *binance.MetaCache
	Feed        *feed.Manager
	Registry    *coord.Registry
	Coordinator *coord.Coordinator
	Oracle      oracle.Oracle
	Bus         *events.Bus
	Journal     *db.Journal
}

// Summary is the fleet-wide report for the operational surface.
type Summary struct {
	Workers       []worker.Status `json:"workers"`
	ActiveSymbols []string        `json:"activeSymbols"`
	Searcher      string          `json:"searcher,omitempty"`
	SearchQueue   []string        `json:"searchQueue,omitempty"`
	Balance       float64         `json:"balance"`
	Available     float64         `json:"available"`
	MarginRatio   *float64        `json:"marginRatio,omitempty"`
	Stats         *db.Stats       `json:"stats,omitempty"`
}

// Supervisor owns the worker set and the shared services behind it.
type Supervisor struct {
	deps Deps

	mu      sync.Mutex
	workers map[string]*worker.Worker

	journalStop func()
}

// New builds a supervisor and attaches the journal to the event bus.
func New(deps Deps) *Supervisor {
	s := &Supervisor{deps: deps, workers: make(map[string]*worker.Worker)}
	if deps.Journal != nil {
		s.journalStop = s.recordEvents()
	}
	return s
}

// CreateWorkers validates cfg and starts count workers sharing it. Returns
// how many were started.
func (s *Supervisor) CreateWorkers(count int, cfg worker.Config) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("worker count must be positive, got %d", count)
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if len(s.workers)+count > maxWorkers {
		s.mu.Unlock()
		return 0, fmt.Errorf("worker limit exceeded: %d running, %d requested, cap %d", len(s.workers), count, maxWorkers)
	}
	s.mu.Unlock()

	started := 0
	for i := 0; i < count; i++ {
		w, err := worker.New(cfg, worker.Deps{
			Exchange:    s.deps.Client,
			Prices:      s.deps.Feed,
			Meta:        s.deps.Meta,
			Oracle:      s.deps.Oracle,
			Registry:    s.deps.Registry,
			Coordinator: s.deps.Coordinator,
			Bus:         s.deps.Bus,
		})
		if err != nil {
			return started, err
		}
		s.mu.Lock()
		s.workers[w.ID()] = w
		s.mu.Unlock()
		w.Start()
		started++
	}
	return started, nil
}

// StopWorker stops one worker by id.
func (s *Supervisor) StopWorker(id, reason string) error {
	s.mu.Lock()
	w, ok := s.workers[id]
	if ok {
		delete(s.workers, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker %q", id)
	}
	w.Stop(reason)
	return nil
}

// StopAllWorkers drains every worker sequentially.
func (s *Supervisor) StopAllWorkers(reason string) int {
	s.mu.Lock()
	all := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		all = append(all, w)
	}
	s.workers = make(map[string]*worker.Worker)
	s.mu.Unlock()

	for _, w := range all {
		w.Stop(reason)
	}
	return len(all)
}

// StopSymbol stops whichever worker currently trades symbol.
func (s *Supervisor) StopSymbol(symbol string) error {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	var target *worker.Worker
	for _, w := range s.workers {
		if w.Symbol() == symbol {
			target = w
			delete(s.workers, w.ID())
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("no worker trades %s", symbol)
	}
	target.Stop("symbol stopped")
	return nil
}

// ListWorkers returns a snapshot of every worker.
func (s *Supervisor) ListWorkers() []worker.Status {
	s.mu.Lock()
	all := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		all = append(all, w)
	}
	s.mu.Unlock()

	out := make([]worker.Status, 0, len(all))
	for _, w := range all {
		out = append(out, w.Status())
	}
	return out
}

// GetSummary assembles the fleet report. Balance or stats failures degrade
// to partial data rather than erroring the whole report.
func (s *Supervisor) GetSummary(ctx context.Context) Summary {
	sum := Summary{
		Workers:       s.ListWorkers(),
		ActiveSymbols: s.deps.Registry.Active(),
	}
	sum.Searcher, sum.SearchQueue = s.deps.Coordinator.QueueInfo()

	if total, available, err := s.deps.Client.TotalAndAvailableBalance(ctx); err == nil {
		sum.Balance = total
		sum.Available = available
	}
	if ms, err := s.deps.Client.MarginSafety(ctx); err == nil && ms.RatioValid {
		sum.MarginRatio = &ms.Ratio
	}
	if s.deps.Journal != nil {
		if stats, err := s.deps.Journal.TradeStats(ctx); err == nil {
			sum.Stats = &stats
		}
	}
	return sum
}

// Shutdown stops every worker and tears down the shared services.
func (s *Supervisor) Shutdown() {
	n := s.StopAllWorkers("shutdown")
	logger.Infof("supervisor: stopped %d workers", n)
	if s.journalStop != nil {
		s.journalStop()
	}
	s.deps.Feed.StopAll()
}

// presetFile is the YAML shape for declaring a fleet without the API.
type presetFile struct {
	Fleets []struct {
		Count  int           `yaml:"count"`
		Config worker.Config `yaml:"config"`
	} `yaml:"fleets"`
}

// LoadPresets starts the fleets declared in the YAML file at path.
func (s *Supervisor) LoadPresets(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read presets: %w", err)
	}
	var file presetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse presets: %w", err)
	}
	for i, fleet := range file.Fleets {
		n, err := s.CreateWorkers(fleet.Count, fleet.Config)
		if err != nil {
			return fmt.Errorf("preset fleet %d: %w", i, err)
		}
		logger.Infof("supervisor: preset fleet %d started %d workers", i, n)
	}
	return nil
}

// recordEvents mirrors position lifecycle events into the journal. Journal
// failures are logged and never block trading.
func (s *Supervisor) recordEvents() func() {
	openCh, unsubOpen := s.deps.Bus.Subscribe(events.EventPositionOpened, 64)
	scaleCh, unsubScale := s.deps.Bus.Subscribe(events.EventPositionScaled, 64)
	closeCh, unsubClose := s.deps.Bus.Subscribe(events.EventPositionClosed, 64)
	marginCh, unsubMargin := s.deps.Bus.Subscribe(events.EventMarginAlert, 16)

	record := func(action string, payload any) {
		p, ok := payload.(events.PositionEvent)
		if !ok {
			return
		}
		t := db.Trade{
			WorkerID: p.WorkerID, Symbol: p.Symbol, Side: p.Side, Action: action,
			Qty: p.Qty, Price: p.Entry, ROI: p.ROI, Profit: p.Profit, Reason: p.Reason,
		}
		if action == db.ActionClose {
			t.Price = p.Exit
		}
		if err := s.deps.Journal.RecordTrade(context.Background(), t); err != nil {
			logger.Warnf("journal: %v", err)
		}
	}

	go func() {
		for payload := range openCh {
			record(db.ActionOpen, payload)
		}
	}()
	go func() {
		for payload := range scaleCh {
			record(db.ActionPyramid, payload)
		}
	}()
	go func() {
		for payload := range closeCh {
			record(db.ActionClose, payload)
		}
	}()
	go func() {
		for payload := range marginCh {
			m, ok := payload.(events.MarginEvent)
			if !ok {
				continue
			}
			detail := fmt.Sprintf("ratio %.3f <= %.2f", m.Ratio, m.Threshold)
			if err := s.deps.Journal.RecordEvent(context.Background(), "", "margin_alert", detail); err != nil {
				logger.Warnf("journal: %v", err)
			}
		}
	}()

	return func() {
		unsubOpen()
		unsubScale()
		unsubClose()
		unsubMargin()
	}
}
