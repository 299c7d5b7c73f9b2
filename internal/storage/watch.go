package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// watch turns feed notifications on topics into full snapshots produced by
// read. The feed subscription is opened before the first read so no change
// between the two can be lost. The initial snapshot is delivered before watch
// returns; later ones come from a single goroutine, in order.
//
// The subscription outlives ctx: only the returned Unsubscribe ends it.
func watch[T any](ctx context.Context, feed Feed, topics []string, read func(context.Context) (T, error), onChange func(T)) (Unsubscribe, error) {
	sub, err := feed.Subscribe(ctx, topics...)
	if err != nil {
		return nil, wrap("subscribe", err)
	}

	initial, err := read(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var closed atomic.Bool
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			closed.Store(true)
			cancel()
			if err := sub.Close(); err != nil {
				slog.Debug("feed subscription close failed", "topics", topics, "err", err)
			}
		})
	}

	onChange(initial)

	go func() {
		for {
			select {
			case <-loopCtx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
			}

			snapshot, err := read(loopCtx)
			if closed.Load() {
				return
			}
			if err != nil {
				slog.Warn("snapshot re-read failed", "topics", topics, "err", err)
				continue
			}
			onChange(snapshot)
		}
	}()

	return unsubscribe, nil
}
