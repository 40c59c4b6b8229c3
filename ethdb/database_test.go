// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package ethdb_test

import (
	"context"
	"testing"

	"github.com/rollupchain/rgeth/ethdb"
	"github.com/rollupchain/rgeth/ethdb/memorydb"
	"github.com/stretchr/testify/require"
)

func TestWithAsyncGet(t *testing.T) {
	store := memorydb.New()
	defer store.Close()
	require.NoError(t, store.Put([]byte("k"), []byte("v")))

	db := ethdb.WithAsync(store)
	res := <-db.GetAsync(context.Background(), []byte("k"))
	require.NoError(t, res.Err)
	require.Equal(t, []byte("v"), res.Value)
}

func TestWithAsyncBatchPreservesOrder(t *testing.T) {
	store := memorydb.New()
	defer store.Close()

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for i, k := range keys {
		require.NoError(t, store.Put(k, []byte{byte('0' + i)}))
	}

	db := ethdb.WithAsync(store)
	out, err := db.GetAsyncBatch(context.Background(), keys)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{'0'}, {'1'}, {'2'}}, out)
}

func TestWithAsyncBatchPropagatesError(t *testing.T) {
	store := memorydb.New()
	require.NoError(t, store.Put([]byte("present"), []byte("v")))
	require.NoError(t, store.Close())

	db := ethdb.WithAsync(store)
	_, err := db.GetAsyncBatch(context.Background(), [][]byte{[]byte("present"), []byte("missing")})
	require.ErrorIs(t, err, memorydb.ErrMemorydbClosed)
}
