// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Command geth is the node entrypoint: it opens the on-disk storage engine at --datadir and
// starts the pruner. --sync.mode is validated and logged; the command starts no sync of either
// kind.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/rollupchain/rgeth/core/rawdb"
	"github.com/rollupchain/rgeth/ethdb"
	"github.com/rollupchain/rgeth/ethdb/pebbledb"
	"github.com/rollupchain/rgeth/log"
)

// syncMode is the --sync.mode flag's value set: "full" replays every block, "snap" bootstraps
// from a recent pivot via the snap-sync driver.
type syncMode string

const (
	syncModeFull syncMode = "full"
	syncModeSnap syncMode = "snap"
)

func parseSyncMode(s string) (syncMode, error) {
	switch syncMode(s) {
	case syncModeFull, syncModeSnap:
		return syncMode(s), nil
	default:
		return "", fmt.Errorf("unknown sync mode %q (want %q or %q)", s, syncModeFull, syncModeSnap)
	}
}

var (
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the database",
		Value: defaultDataDir(),
	}
	syncModeFlag = &cli.StringFlag{
		Name:  "sync.mode",
		Usage: `Blockchain sync mode ("full" or "snap")`,
		Value: string(syncModeSnap),
	}
	cacheFlag = &cli.IntFlag{
		Name:  "cache",
		Usage: "Megabytes of memory allocated to the header/trie-node caches",
		Value: 512,
	}
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rgeth"
	}
	return filepath.Join(home, ".rgeth")
}

func main() {
	app := &cli.App{
		Name:  "geth",
		Usage: "the rgeth execution-layer node",
		Flags: []cli.Flag{dataDirFlag, syncModeFlag, cacheFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("fatal error", "err", err)
	}
}

// run opens the storage engine at --datadir and starts the background pruner. Wiring a real
// peer table and sync driver onto this entrypoint is the job of a long-running node process;
// this command's own job ends at standing the storage engine up and handing control to it.
func run(ctx *cli.Context) error {
	mode, err := parseSyncMode(ctx.String(syncModeFlag.Name))
	if err != nil {
		return err
	}
	dataDir := ctx.String(dataDirFlag.Name)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	log.Info("opening database", "datadir", dataDir, "sync.mode", mode)
	store, err := openDatabase(dataDir, ctx.Int(cacheFlag.Name))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	db := rawdb.NewDatabase(ethdb.WithAsync(store), ctx.Int(cacheFlag.Name))

	pruner := rawdb.NewPruner(db, rawdb.DefaultKeepBlocks, 0)
	head, ok, err := db.ReadCurrentSnapshotBlock()
	if err != nil {
		return fmt.Errorf("reading current snapshot block: %w", err)
	}
	pruner.Start(func() (rawdb.BlockRef, bool) {
		return head, ok
	})
	defer pruner.Stop()

	log.Info("node ready", "sync.mode", mode, "snapshot_block", head.Number)
	return nil
}

func openDatabase(dataDir string, cacheMB int) (ethdb.KeyValueStore, error) {
	return pebbledb.New(filepath.Join(dataDir, "chaindata"), cacheMB, 0, "rgeth/db/chaindata", false)
}
