package tasks

import (
	"context"
	"sync"

	"autotrader/pkg/logger"
)

type Category string

const (
	CategoryStrategy Category = "strategy"
	CategoryAlarm    Category = "alarm"
	CategoryAlert    Category = "alert"
)

// LoopFunc is a long-running monitor body. It must return promptly once
// its context is cancelled and must swallow its own iteration errors —
// the registry only ever observes cancellation.
type LoopFunc func(ctx context.Context)

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the lifecycle of named background loops, grouped by
// category and keyed by entity id. All loops run under contexts derived
// from the parent given at construction, so cancelling the parent takes
// the whole registry down.
type Registry struct {
	parent context.Context

	mu      sync.Mutex
	handles map[Category]map[string]*handle
}

func NewRegistry(parent context.Context) *Registry {
	return &Registry{
		parent:  parent,
		handles: make(map[Category]map[string]*handle),
	}
}

// Start launches fn under (category, key). Idempotent: if a loop is
// already registered for the pair the call does nothing and returns
// false — a startup reconciliation pass and a live "created" event may
// race for the same entity.
func (r *Registry) Start(category Category, key string, fn LoopFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, ok := r.handles[category]
	if !ok {
		byKey = make(map[string]*handle)
		r.handles[category] = byKey
	}
	if _, running := byKey[key]; running {
		return false
	}

	ctx, cancel := context.WithCancel(r.parent)
	h := &handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	byKey[key] = h

	go func() {
		defer close(h.done)
		fn(ctx)

		// Loops normally exit only via cancellation, but if one returns
		// on its own the handle must not linger.
		r.mu.Lock()
		if cur, ok := r.handles[category][key]; ok && cur == h {
			delete(r.handles[category], key)
		}
		r.mu.Unlock()
	}()

	logger.Info("[tasks] started %s/%s", category, key)
	return true
}

// Stop cancels the loop under (category, key) and blocks until it has
// actually exited. No-op when nothing is registered for the pair.
func (r *Registry) Stop(category Category, key string) {
	r.mu.Lock()
	h, ok := r.handles[category][key]
	r.mu.Unlock()
	if !ok {
		return
	}

	h.cancel()
	<-h.done

	r.mu.Lock()
	if cur, ok := r.handles[category][key]; ok && cur == h {
		delete(r.handles[category], key)
	}
	r.mu.Unlock()

	logger.Info("[tasks] stopped %s/%s", category, key)
}

func (r *Registry) StopCategory(category Category) {
	for _, key := range r.ListActive(category) {
		r.Stop(category, key)
	}
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	categories := make([]Category, 0, len(r.handles))
	for category := range r.handles {
		categories = append(categories, category)
	}
	r.mu.Unlock()

	for _, category := range categories {
		r.StopCategory(category)
	}
}

func (r *Registry) ListActive(category Category) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.handles[category]))
	for key := range r.handles[category] {
		keys = append(keys, key)
	}
	return keys
}
