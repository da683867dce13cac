package app

import (
	"context"

	"github.com/Blackdeer1524/heapdb/src/cli"
)

var rootCmd = cli.Init("heapdb")

func MustExecute(ctx context.Context) {
	initTables()
	initScan()
	initInsert()
	initStats()
	initBench()
	rootCmd.MustExecute(ctx)
}
