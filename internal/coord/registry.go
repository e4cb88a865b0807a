package coord

import (
	"sort"
	"strings"
	"sync"
)

// Registry enforces "at most one worker per symbol". Workers must register a
// symbol before trading it and unregister it on release; the registry is a
// convention, not an exchange-side lock.
type Registry struct {
	mu    sync.Mutex
	owner map[string]string
}

// NewRegistry creates an empty symbol registry.
func NewRegistry() *Registry {
	return &Registry{owner: make(map[string]string)}
}

// Register claims symbol for workerID. It returns false when the symbol is
// already held by a different worker; re-registering by the same owner is
// idempotent.
func (r *Registry) Register(symbol, workerID string) bool {
	symbol = strings.ToUpper(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.owner[symbol]; ok {
		return cur == workerID
	}
	r.owner[symbol] = workerID
	return true
}

// Unregister releases symbol if workerID holds it.
func (r *Registry) Unregister(symbol, workerID string) {
	symbol = strings.ToUpper(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner[symbol] == workerID {
		delete(r.owner, symbol)
	}
}

// Contains reports whether symbol is registered to any worker.
func (r *Registry) Contains(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owner[symbol]
	return ok
}

// Active returns the registered symbols in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.owner))
	for s := range r.owner {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
