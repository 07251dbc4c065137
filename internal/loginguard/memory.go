package loginguard

import (
	"context"
	"sync"
	"time"
)

// Memory keeps failure counters in process. Fine for a single API instance;
// use Redis when several instances share traffic.
type Memory struct {
	mu   sync.Mutex
	opts Options
	now  func() time.Time
	m    map[string]entry
}

type entry struct {
	count int
	exp   time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts: opts.withDefaults(),
		now:  time.Now,
		m:    make(map[string]entry),
	}
}

// get returns the live entry for key, evicting it if the window has passed.
// Callers hold mu.
func (g *Memory) get(key string, now time.Time) (entry, bool) {
	e, ok := g.m[key]
	if !ok {
		return entry{}, false
	}

	if !now.Before(e.exp) {
		delete(g.m, key)
		return entry{}, false
	}

	return e, true
}

func (g *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.get(key, now)
	if !ok || e.count < g.opts.MaxFailures {
		return true, 0, nil
	}

	return false, e.exp.Sub(now), nil
}

func (g *Memory) Failure(_ context.Context, key string) error {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.get(key, now)
	if !ok {
		e = entry{exp: now.Add(g.opts.Window)}
	}

	e.count++
	g.m[key] = e

	return nil
}

func (g *Memory) Reset(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return nil
}
