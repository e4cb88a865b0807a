package coord

import (
	"strings"
	"sync"
)

// Coordinator arbitrates which idle worker may scan the market for a new
// instrument. At most one searcher is active at a time; everyone else waits
// in a strict FIFO queue. Promotion is an explicit hand-off: the promoted
// worker's notify channel is signalled so it wakes without polling.
type Coordinator struct {
	mu              sync.Mutex
	currentSearcher string
	queue           []string
	notify          map[string]chan struct{}
	holding         map[string]struct{}
	distributed     map[string]struct{}
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		notify:      make(map[string]chan struct{}),
		holding:     make(map[string]struct{}),
		distributed: make(map[string]struct{}),
	}
}

// RequestSearch asks for the searcher role. Granted when no searcher is
// active (or id already is the searcher); otherwise id joins the queue and
// the returned channel fires once id is promoted. Workers that already hold
// an instrument are denied outright with a nil channel.
func (c *Coordinator) RequestSearch(id string) (granted bool, promoted <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, holds := c.holding[id]; holds {
		return false, nil
	}
	if c.currentSearcher == "" || c.currentSearcher == id {
		c.currentSearcher = id
		return true, nil
	}
	if ch, queued := c.notify[id]; queued {
		return false, ch
	}
	ch := make(chan struct{}, 1)
	c.queue = append(c.queue, id)
	c.notify[id] = ch
	return false, ch
}

// FinishSearch releases the searcher role. No-op unless id is the current
// searcher. foundSymbol (if non-empty) is recorded as distributed;
// nowHolding marks id as an instrument holder. When the queue is non-empty
// the head is promoted, signalled, and returned.
func (c *Coordinator) FinishSearch(id, foundSymbol string, nowHolding bool) (promotedID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentSearcher != id {
		return ""
	}
	c.currentSearcher = ""
	if foundSymbol != "" {
		c.distributed[strings.ToUpper(foundSymbol)] = struct{}{}
	}
	if nowHolding {
		c.holding[id] = struct{}{}
		c.dropFromQueue(id)
	}
	return c.promoteNext()
}

// Forget removes id from the coordinator entirely, for a worker that is
// stopping. If id was the current searcher the next waiter is promoted so
// arbitration keeps moving; the promoted id is returned.
func (c *Coordinator) Forget(id string) (promotedID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holding, id)
	c.dropFromQueue(id)
	if c.currentSearcher != id {
		return ""
	}
	c.currentSearcher = ""
	return c.promoteNext()
}

// promoteNext pops the first queued non-holder, makes it the searcher, and
// signals its notify channel. Caller holds mu.
func (c *Coordinator) promoteNext() (promotedID string) {
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		ch := c.notify[next]
		delete(c.notify, next)
		if _, holds := c.holding[next]; holds {
			continue
		}
		c.currentSearcher = next
		if ch != nil {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		return next
	}
	return ""
}

// MarkHolding records that id possesses an instrument and removes it from
// the wait queue.
func (c *Coordinator) MarkHolding(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holding[id] = struct{}{}
	c.dropFromQueue(id)
}

// MarkLost records that id no longer possesses an instrument.
func (c *Coordinator) MarkLost(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holding, id)
}

// ReleaseSymbol removes a symbol from the distributed set so another worker
// may pick it up again.
func (c *Coordinator) ReleaseSymbol(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.distributed, strings.ToUpper(symbol))
}

// SymbolAvailable reports whether symbol has not yet been handed to any
// worker. Best effort only; callers re-verify exchange state after claiming.
func (c *Coordinator) SymbolAvailable(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, taken := c.distributed[strings.ToUpper(symbol)]
	return !taken
}

// QueueInfo returns the current searcher and a copy of the wait queue for
// the summary endpoint.
func (c *Coordinator) QueueInfo() (searcher string, waiting []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiting = make([]string, len(c.queue))
	copy(waiting, c.queue)
	return c.currentSearcher, waiting
}

// dropFromQueue removes id from the queue. Caller holds mu.
func (c *Coordinator) dropFromQueue(id string) {
	for i, q := range c.queue {
		if q == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	delete(c.notify, id)
}
