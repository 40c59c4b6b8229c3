// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package rawdb

import (
	"sync"
	"time"

	"github.com/rollupchain/rgeth/log"
)

// DefaultKeepBlocks is the pruner's default retention window: a trie node stays referenced
// until every block that could still read it leaves this many blocks behind the head.
const DefaultKeepBlocks = 128

// Pruner runs the background ref-counted node collector: at every tick it retires the block
// that just fell out of the retention window, decrementing the ref count of every node its
// pruning log invalidated and physically deleting any node whose count reaches zero.
type Pruner struct {
	db         *Database
	keepBlocks uint64
	interval   time.Duration
	log        log.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewPruner constructs a pruner over db. keepBlocks defaults to DefaultKeepBlocks and interval
// to one second (the ">= 1 Hz" floor) when given as zero.
func NewPruner(db *Database, keepBlocks uint64, interval time.Duration) *Pruner {
	if keepBlocks == 0 {
		keepBlocks = DefaultKeepBlocks
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Pruner{
		db:         db,
		keepBlocks: keepBlocks,
		interval:   interval,
		log:        log.New("module", "pruner"),
	}
}

// Start launches the pruner's background ticker. headFn is polled on each tick for the
// current snapshot head; Start is a no-op if already running.
func (p *Pruner) Start(headFn func() (BlockRef, bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(headFn)
}

// Stop halts the background ticker and waits for the in-flight tick, if any, to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop := p.stop
	done := p.done
	p.mu.Unlock()

	close(stop)
	<-done
}

func (p *Pruner) loop(headFn func() (BlockRef, bool)) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			head, ok := headFn()
			if !ok {
				continue
			}
			if err := p.Tick(head); err != nil {
				p.log.Error("pruning tick failed", "err", err)
			}
		}
	}
}

// Tick retires the single block that just left the retention window behind head, if any. It is
// exported directly so tests (and a manually driven sync loop) can run pruning deterministically
// without waiting on the ticker.
func (p *Pruner) Tick(head BlockRef) error {
	if head.Number < p.keepBlocks {
		return nil
	}
	retireNumber := head.Number - p.keepBlocks
	return p.retire(BlockRef{Number: retireNumber, Hash: head.Hash})
}

// retire decrements the ref count of every node the target block's pruning log invalidated and
// deletes any node count reaches zero. The hash in ref only identifies the pruning-log key; the
// caller is expected to pass the hash of the block actually at that height.
func (p *Pruner) retire(ref BlockRef) error {
	pruneLog, ok, err := p.db.ReadPruningLog(ref)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, nodeHash := range pruneLog.StateNodes {
		count, err := p.db.IncrementStateNodeRefCount(nodeHash, -1)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := p.db.db.Delete(stateTrieNodeKey([32]byte(nodeHash))); err != nil {
				return err
			}
		}
	}
	for _, entry := range pruneLog.StorageNodes {
		count, err := p.db.IncrementStorageNodeRefCount(entry.AddressHash, entry.NodeHash, -1)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := p.db.db.Delete(storageTrieNodeKey([32]byte(entry.AddressHash), [32]byte(entry.NodeHash))); err != nil {
				return err
			}
		}
	}
	return nil
}
