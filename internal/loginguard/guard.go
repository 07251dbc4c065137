// Package loginguard throttles repeated failed logins for one account from
// one client. A key is locked once it collects MaxFailures failures inside
// Window, and stays locked until the window expires or a login succeeds.
package loginguard

import (
	"context"
	"time"

	"github.com/geocoder89/fleethub/internal/domain/user"
)

const (
	DefaultMaxFailures = 5
	DefaultWindow      = 15 * time.Minute

	keyPrefix = "auth:login_fail:"
)

type Guard interface {
	// Allow reports whether another attempt may be made for key. When it
	// returns false, retryAfter is how long the caller should wait.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
	Failure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type Options struct {
	MaxFailures int
	Window      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	return o
}

func Key(email, clientIP string) string {
	return keyPrefix + user.NormalizeEmail(email) + ":" + clientIP
}
