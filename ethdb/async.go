// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package ethdb

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WithAsync wraps any KeyValueStore with the asynchronous read methods required by the
// Database interface, dispatching each read onto its own goroutine. Backends only need to
// implement the synchronous KeyValueStore contract; Get itself is already safe for
// concurrent use by every backend in this package.
func WithAsync(store KeyValueStore) Database {
	return &asyncDatabase{KeyValueStore: store}
}

type asyncDatabase struct {
	KeyValueStore
}

func (d *asyncDatabase) GetAsync(ctx context.Context, key []byte) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		v, err := d.Get(key)
		select {
		case ch <- AsyncResult{Value: v, Err: err}:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch
}

func (d *asyncDatabase) GetAsyncBatch(ctx context.Context, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			v, err := d.Get(key)
			if err != nil {
				return err
			}
			out[i] = v
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
