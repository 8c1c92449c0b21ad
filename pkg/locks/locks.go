// Package locks provides keyed mutual exclusion for stock mutations.
//
// Keys are always acquired in sorted order so two callers that need
// overlapping key sets cannot deadlock, and every acquisition is bounded by
// the configured wait.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
)

const defaultWait = 5 * time.Second

// ErrLockTimeout is returned when a key could not be acquired within the wait.
var ErrLockTimeout = errors.New("lock wait exceeded")

// Locker hands out leases over one or more keys.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (Lease, error)
}

// Lease is held until Release is called.
type Lease interface {
	Release(ctx context.Context) error
}

// keyLocker is implemented by the single-key backends.
type keyLocker interface {
	acquire(ctx context.Context, key string) (func(ctx context.Context) error, error)
}

// ItemKey returns the lock key guarding an inventory item.
func ItemKey(itemID string) string {
	return "item:" + itemID
}

// CartKey returns the lock key guarding a user's cart.
func CartKey(userID string) string {
	return "cart:" + userID
}

type lease struct {
	releases []func(ctx context.Context) error
}

func (l *lease) Release(ctx context.Context) error {
	var err error
	for i := len(l.releases) - 1; i >= 0; i-- {
		err = multierr.Append(err, l.releases[i](ctx))
	}
	l.releases = nil
	return err
}

func lockAll(ctx context.Context, backend keyLocker, wait time.Duration, keys []string) (Lease, error) {
	if wait <= 0 {
		wait = defaultWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	held := &lease{}
	for _, key := range normalize(keys) {
		release, err := backend.acquire(ctx, key)
		if err != nil {
			// context.WithoutCancel keeps cleanup alive after the wait expired.
			cleanupErr := held.Release(context.WithoutCancel(ctx))
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, multierr.Append(err, cleanupErr)
		}
		held.releases = append(held.releases, release)
	}
	return held, nil
}

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
