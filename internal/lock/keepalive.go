package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/rs/zerolog/log"
)

// Keeper renews a lease every ttl/3 until stopped, so a holder that outlives
// its TTL keeps the key. Once the lease is lost it stops renewing and Err
// reports the loss.
type Keeper struct {
	lease  Lease
	ttl    time.Duration
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func KeepAlive(ctx context.Context, lease Lease, ttl time.Duration) *Keeper {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	k := &Keeper{
		lease:  lease,
		ttl:    ttl,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	go k.loop(ctx, interval)
	return k
}

func (k *Keeper) loop(ctx context.Context, interval time.Duration) {
	defer close(k.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.Renew(ctx); err != nil {
				return
			}
		}
	}
}

// Renew extends the lease now. It only returns an error once the lease has
// been lost; other failures are logged and retried on the next tick.
func (k *Keeper) Renew(ctx context.Context) error {
	if err := k.Err(); err != nil {
		return err
	}

	err := k.lease.Extend(ctx, k.ttl)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRunInProgress):
		k.mu.Lock()
		if k.err == nil {
			k.err = err
		}
		k.mu.Unlock()
		log.Error().Err(err).Str("lock_key", k.lease.Key()).Msg("run lock lost")
		return err
	case ctx.Err() != nil:
		return nil
	default:
		log.Warn().Err(err).Str("lock_key", k.lease.Key()).Msg("failed to extend run lock")
		return nil
	}
}

// Err returns the loss error, or nil while the lease is held.
func (k *Keeper) Err() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}

// Stop ends background renewal and waits for it to exit.
func (k *Keeper) Stop() {
	k.cancel()
	<-k.done
}
