// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"context"
	"errors"
	"sync"

	"github.com/rollupchain/rgeth/common"
	"github.com/rollupchain/rgeth/core/rawdb"
	"github.com/rollupchain/rgeth/core/types"
	"github.com/rollupchain/rgeth/rlp"
	"github.com/rollupchain/rgeth/trie"
)

// MaxParallelFetches is a bound on outstanding requests that the Syncer does not consult: it
// keeps one request in flight at a time.
const MaxParallelFetches = 10

// MaxChannelMessages bounds the buffer on every internal work/result channel the syncer uses,
// so a slow consumer applies backpressure to producers instead of letting memory grow unbounded.
const MaxChannelMessages = 500

// syncPhase names one state in the snap-sync state machine.
type syncPhase int

const (
	phaseHeaderSync syncPhase = iota
	phaseStateSync
	phaseHealing
	phaseRebuild
	phaseDone
)

// TipSource reports the current advertised chain tip, used to pick (and, if it moves too far
// while syncing, re-pick) the pivot block.
type TipSource interface {
	ChainTip(ctx context.Context, peer common.Hash) (uint64, common.Hash, error)
}

// Syncer drives a node from a headerless database to a fully populated one: it downloads
// headers to a pivot, fetches every account and storage slot under the pivot's state root,
// heals whatever the range sweep missed, and reconstructs the trie from the synced leaves.
type Syncer struct {
	db        *rawdb.Database
	peers     *peers
	sender    Requester
	tips      TipSource
	keccak256 func(...[]byte) []byte

	mu    sync.Mutex
	phase syncPhase
}

// NewSyncer constructs a Syncer. table is the peer collaborator snap-sync scoring runs against;
// sender frames and delivers the four wire requests; tips reports the advertised chain head.
func NewSyncer(db *rawdb.Database, table peerSource, sender Requester, tips TipSource, keccak256 func(...[]byte) []byte) *Syncer {
	return &Syncer{
		db:        db,
		peers:     newPeers(table, sender),
		sender:    sender,
		tips:      tips,
		keccak256: keccak256,
	}
}

// Phase reports which state the syncer is currently in, for progress reporting.
func (s *Syncer) Phase() syncPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Syncer) setPhase(p syncPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Run drives the full HeaderSync -> StateSync -> Healing -> Rebuild -> Done state machine to
// completion, or until ctx is cancelled. Header sync, state sync and rebuild resume from the
// SnapState checkpoints a prior, interrupted run left behind; healing does not (see heal).
func (s *Syncer) Run(ctx context.Context, headers HeaderSource) error {
	s.setPhase(phaseHeaderSync)
	id, err := s.peers.pick()
	if err != nil {
		return err
	}
	tipNumber, _, err := s.tips.ChainTip(ctx, id)
	s.peers.release(id, outcomeSuccess)
	if err != nil {
		return err
	}
	pivotNumber, err := selectPivot(tipNumber)
	if err != nil {
		return err
	}

	hs := newHeaderSync(s.db, headers, s.peers)
	pivot, err := hs.run(ctx, pivotNumber, 192)
	if err != nil {
		return err
	}
	if pivot == nil {
		// Every header through pivotNumber was already downloaded by a prior run.
		hash, ok, rerr := s.db.ReadCanonicalHash(pivotNumber)
		if rerr != nil {
			return rerr
		}
		if !ok {
			return errors.New("snap: pivot header missing after header sync")
		}
		pivot, err = s.db.ReadHeader(pivotNumber, hash)
		if err != nil {
			return err
		}
	}

	s.setPhase(phaseStateSync)
	if err := s.stateSync(ctx, pivot); err != nil {
		return err
	}

	s.setPhase(phaseHealing)
	if err := s.heal(ctx, pivot); err != nil {
		return err
	}

	s.setPhase(phaseRebuild)
	if err := s.rebuild(ctx, pivot); err != nil {
		return err
	}

	s.setPhase(phaseDone)
	return nil
}

// stateSync runs the account-range phase over every segment and the storage-range phase over
// every account it discovers, buffering results into the rebuild checkpoint's pending-account
// log rather than writing directly into the trie (which the rebuild phase alone constructs).
func (s *Syncer) stateSync(ctx context.Context, pivot *types.Header) error {
	cp, err := loadTrieKeyCheckpoint(s.db)
	if err != nil {
		return err
	}

	var segments [StateTrieSegments][]accountEntry
	storageRoots := make(map[common.Hash]common.Hash)
	codeFetcher := newBytecodeFetcher(s.db, s.peers, s.keccak256)

	for seg := 0; seg < StateTrieSegments; seg++ {
		if cp.Segments[seg].Done {
			continue
		}
		segStart, segEnd := segmentBounds(seg)
		cursor := segStart
		if cp.Segments[seg].Next != (common.Hash{}) {
			cursor = cp.Segments[seg].Next
		}
		fetcher := newAccountRangeFetcher(pivot.Root, segEnd, s.peers, s.keccak256)
		for {
			next, done, ferr := fetcher.fetchChunk(ctx, s.sender, cursor)
			if ferr != nil {
				return ferr
			}
			for _, e := range fetcher.drain() {
				segments[seg] = append(segments[seg], accountEntry{Hash: e.Hash, Body: e.Body})
				var acc types.Account
				if derr := rlp.DecodeBytes(e.Body, &acc); derr == nil {
					storageRoots[e.Hash] = acc.StorageRoot
					if acc.CodeHash != types.EmptyCodeHash {
						if werr := codeFetcher.want(acc.CodeHash); werr != nil {
							return werr
						}
					}
				}
			}
			cursor = next
			if done {
				cp.Segments[seg] = segmentCheckpoint{Next: cursor, Done: true}
				break
			}
			cp.Segments[seg] = segmentCheckpoint{Next: cursor, Done: false}
			if err := saveTrieKeyCheckpoint(s.db, cp); err != nil {
				return err
			}
		}
		if err := saveTrieKeyCheckpoint(s.db, cp); err != nil {
			return err
		}
	}

	for !codeFetcher.done() {
		if _, err := codeFetcher.drainChunk(ctx, s.sender); err != nil {
			return err
		}
	}

	var all []common.Hash
	for addr := range storageRoots {
		all = append(all, addr)
	}
	groups := groupByStorageRoot(all, func(a common.Hash) common.Hash { return storageRoots[a] })
	tasks := planStorageTasks(groups, func(common.Hash) uint64 { return 0 })
	fetcher := newStorageRangeFetcher(pivot.Root, s.peers, s.keccak256)
	slotBuffer, err := loadPendingStorageSlots(s.db)
	if err != nil {
		return err
	}
	if slotBuffer == nil {
		slotBuffer = make(map[common.Hash][]accountEntry)
	}
	for _, task := range tasks {
		results, err := fetcher.fetch(ctx, s.sender, task, func(a common.Hash) common.Hash { return storageRoots[a] })
		if err != nil {
			return err
		}
		for _, r := range results {
			for _, slot := range r.Slots {
				slotBuffer[r.Account] = append(slotBuffer[r.Account], accountEntry{Hash: slot.Hash, Body: slot.Body})
			}
		}
	}
	if err := savePendingStorageSlots(s.db, slotBuffer); err != nil {
		return err
	}

	return savePendingAccountSegments(s.db, segments)
}

// heal runs both healers to convergence, starting from the pending-path sets found in SnapState
// or, when none are stored, from the pivot root. heal does not write its pending paths back to
// SnapState, so an interrupted heal starts again from the root.
func (s *Syncer) heal(ctx context.Context, pivot *types.Header) error {
	statePaths, err := loadStateHealPaths(s.db)
	if err != nil {
		return err
	}
	storagePaths, err := loadStorageHealPaths(s.db)
	if err != nil {
		return err
	}

	resumeState := make([]nibblePath, len(statePaths))
	for i, p := range statePaths {
		resumeState[i] = nibblePath(p)
	}
	resumeStorage := make(map[common.Hash][]nibblePath, len(storagePaths))
	for addr, paths := range storagePaths {
		list := make([]nibblePath, len(paths))
		for i, p := range paths {
			list[i] = nibblePath(p)
		}
		resumeStorage[addr] = list
	}

	codeFetcher := newBytecodeFetcher(s.db, s.peers, s.keccak256)
	newStorage := make(chan common.Hash, MaxChannelMessages)
	newCode := make(chan common.Hash, MaxChannelMessages)

	stateStore := trie.NewStateTrieStore(s.db)
	sh := newStateHealer(stateStore, s.keccak256, resumeState, newCode, newStorage)
	stoh := newStorageHealer(func(addr common.Hash) trieStore { return trie.NewStorageTrieStore(s.db, addr) }, s.keccak256, resumeStorage)

	for !sh.done() || !stoh.done() || !codeFetcher.done() {
		for len(newCode) > 0 {
			if err := codeFetcher.want(<-newCode); err != nil {
				return err
			}
		}
		for len(newStorage) > 0 {
			stoh.addAccount(<-newStorage)
		}

		if !sh.done() {
			if err := s.healRound(ctx, pivot.Root, nil, sh, nil); err != nil {
				return err
			}
		}
		for addr := range stoh.pending {
			a := addr
			if err := s.healRound(ctx, pivot.Root, &a, nil, stoh); err != nil {
				return err
			}
			break // one account's batch per outer loop iteration, re-scanning pending each time
		}
		if !codeFetcher.done() {
			if _, err := codeFetcher.drainChunk(ctx, s.sender); err != nil {
				return err
			}
		}
	}

	return nil
}

// healRound issues one GetTrieNodes request covering a batch from either the state healer
// (account is nil) or one account's storage healer, and feeds the reply back in.
func (s *Syncer) healRound(ctx context.Context, root common.Hash, account *common.Hash, sh *stateHealer, stoh *storageHealer) error {
	var batch []nibblePath
	if account == nil {
		batch = sh.batch()
	} else {
		n := NodeBatchSize
		pending := stoh.pending[*account]
		if n > len(pending) {
			n = len(pending)
		}
		batch = pending[:n]
		stoh.pending[*account] = pending[n:]
	}
	if len(batch) == 0 {
		return nil
	}

	id, err := s.peers.pick()
	if err != nil {
		return err
	}
	paths := make([][][]byte, len(batch))
	for i, p := range batch {
		if account == nil {
			paths[i] = [][]byte{[]byte(p)}
		} else {
			paths[i] = [][]byte{(*account)[:], []byte(p)}
		}
	}
	reply, err := s.sender.GetTrieNodes(ctx, id, &GetTrieNodesPacket{Root: root, Paths: paths, Bytes: RequestBytes})
	if err != nil {
		s.peers.release(id, outcomeTimeout)
		return nil
	}
	bad := false
	for i, path := range batch {
		var enc []byte
		if i < len(reply.Nodes) {
			enc = reply.Nodes[i]
		}
		var want common.Hash
		copy(want[:], s.keccak256([]byte(path)))
		var aerr error
		if account == nil {
			aerr = sh.accept(path, want, enc)
		} else {
			aerr = stoh.accept(*account, path, want, enc)
		}
		if aerr != nil {
			bad = true
		}
	}
	if bad {
		s.peers.release(id, outcomeInvalid)
	} else {
		s.peers.release(id, outcomeSuccess)
	}
	return nil
}

// rebuild reconstructs the state trie from the buffered account log and re-derives any account
// whose account-record storage root the storage phase never finished syncing.
func (s *Syncer) rebuild(ctx context.Context, pivot *types.Header) error {
	segments, err := loadPendingAccountSegments(s.db)
	if err != nil {
		return err
	}

	slotBuffer, err := loadPendingStorageSlots(s.db)
	if err != nil {
		return err
	}
	syncedRoots := make(map[common.Hash]common.Hash, len(slotBuffer))
	for addr, slots := range slotBuffer {
		storageStore := trie.NewStorageTrieStore(s.db, addr)
		root, err := buildTrieFromEntries(storageStore, s.keccak256, slots)
		if err != nil {
			return err
		}
		syncedRoots[addr] = root
	}

	cp, resumed, err := loadRebuildCheckpoint(s.db)
	if err != nil {
		return err
	}
	startRoot := common.Hash{}
	if resumed {
		startRoot = cp.Root
	}

	store := trie.NewStateTrieStore(s.db)
	result, err := rebuildTrie(store, s.keccak256, startRoot, segments, cp.Segments,
		func(addr common.Hash) (common.Hash, bool) { r, ok := syncedRoots[addr]; return r, ok },
		4096,
		func(r rebuildResult) error {
			return saveRebuildCheckpoint(s.db, rebuildCheckpoint{Root: r.Root, Segments: r.Cursors})
		})
	if err != nil {
		return err
	}
	if result.Root != pivot.Root {
		return errors.New("snap: rebuilt trie root does not match pivot header")
	}
	if len(result.Mismatch) > 0 {
		if err := savePendingStorageRebuild(s.db, result.Mismatch); err != nil {
			return err
		}
	}
	return s.db.ClearSnapState()
}
