// Package locking serializes billing work per tenant.
package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrLockTimeout = errors.New("lock_timeout")
	ErrEmptyKey    = errors.New("lock key is empty")
)

// Locker grants exclusive access to a key until unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// BillingKey is the lock guarding issuance and confirmation for one tenant.
func BillingKey(tenantID snowflake.ID) string {
	return fmt.Sprintf("billing:tenant:%s", tenantID.String())
}

const (
	defaultTTL        = 30 * time.Second
	defaultWait       = 10 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
	maxRetryDelay     = 500 * time.Millisecond
)

type options struct {
	wait time.Duration
}

type Option func(*options)

// WithWait bounds how long Lock blocks on a held key, independent of the
// caller's context.
func WithWait(wait time.Duration) Option {
	return func(o *options) {
		if wait > 0 {
			o.wait = wait
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{wait: defaultWait}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxRetryDelay {
		return maxRetryDelay
	}
	return next
}
