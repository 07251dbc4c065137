package loginguard

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("loginguard: circuit breaker open")

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per backend call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// Protected wraps a Guard whose backend can go away (Redis). While the
// circuit is open every call returns ErrCircuitOpen immediately, so logins
// fail open without waiting on dial timeouts.
type Protected struct {
	inner Guard
	cfg   BreakerConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtected(inner Guard, cfg BreakerConfig) *Protected {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Protected{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (p *Protected) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	var (
		ok    bool
		retry time.Duration
	)

	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		ok, retry, err = p.inner.Allow(ctx, key)
		return err
	})

	return ok, retry, err
}

func (p *Protected) Failure(ctx context.Context, key string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.inner.Failure(ctx, key)
	})
}

func (p *Protected) Reset(ctx context.Context, key string) error {
	return p.call(ctx, func(ctx context.Context) error {
		return p.inner.Reset(ctx, key)
	})
}

func (p *Protected) call(ctx context.Context, fn func(context.Context) error) error {
	// fail-fast gate
	if !p.allowRequest() {
		return ErrCircuitOpen
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := fn(cctx)
	p.afterRequest(err)

	return err
}

func (p *Protected) allowRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateOpen:
		// cooldown has passed? move to half open
		if p.now().Sub(p.openedAt) < p.cfg.Cooldown {
			return false
		}
		p.state = stateHalfOpen
		p.halfOpenInFlight = 1
		return true
	case stateHalfOpen:
		if p.halfOpenInFlight >= p.cfg.HalfOpenMaxCalls {
			return false
		}
		p.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (p *Protected) afterRequest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// half-open call just finished
	if p.state == stateHalfOpen && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}

	if err == nil {
		p.consecutiveFailures = 0
		p.state = stateClosed
		return
	}

	p.consecutiveFailures++

	// if half-open failed, reopen immediately
	if p.state == stateHalfOpen || p.consecutiveFailures >= p.cfg.FailureThreshold {
		p.state = stateOpen
		p.openedAt = p.now()
	}
}
