// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

package snap

import (
	"sort"

	"github.com/rollupchain/rgeth/common"
)

// storageGroup is every account sharing one storage root, fetched together since a single
// GetStorageRanges response can satisfy all of them at once.
type storageGroup struct {
	Root     common.Hash
	Accounts []common.Hash
}

// groupByStorageRoot partitions accounts by their storage root and orders the groups by
// descending account count, so the largest shared-root batches (almost always EOAs and the most
// popular contracts) get requested first and spend the fewest round trips per account.
func groupByStorageRoot(accounts []common.Hash, storageRootOf func(common.Hash) common.Hash) []storageGroup {
	byRoot := make(map[common.Hash][]common.Hash)
	var order []common.Hash
	for _, acc := range accounts {
		root := storageRootOf(acc)
		if _, ok := byRoot[root]; !ok {
			order = append(order, root)
		}
		byRoot[root] = append(byRoot[root], acc)
	}
	groups := make([]storageGroup, 0, len(order))
	for _, root := range order {
		groups = append(groups, storageGroup{Root: root, Accounts: byRoot[root]})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Accounts) > len(groups[j].Accounts)
	})
	return groups
}
