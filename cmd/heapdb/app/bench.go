package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/heapdb/src/db"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/query"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

type benchOptions struct {
	workers      int
	txnsPerWork  int
	tuplesPerTxn int
}

type benchResult struct {
	committed atomic.Int64
	aborted   atomic.Int64
	inserted  atomic.Int64
}

func initBench() {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Runs concurrent insert and scan transactions against a scratch table",
		Args:  cobra.NoArgs,
		RunE: rootCmd.WithDatabase(func(ctx context.Context, cmd *cobra.Command, _ []string, d *db.Database) error {
			desc := tuple.NewTupleDesc(
				[]tuple.FieldType{tuple.Int(), tuple.Int(), tuple.String(32)},
				[]string{"worker", "seq", "payload"},
			)
			tableID, err := d.CreateTable("", desc, "")
			if err != nil {
				return err
			}

			var res benchResult
			start := time.Now()

			if err := runBench(ctx, d, tableID, desc, opts, &res); err != nil {
				return err
			}

			elapsed := time.Since(start)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "committed %d, aborted %d, inserted %d tuples in %s\n",
				res.committed.Load(), res.aborted.Load(), res.inserted.Load(), elapsed.Round(time.Millisecond))
			_, _ = fmt.Fprintf(out, "%.1f txn/s\n", float64(res.committed.Load())/elapsed.Seconds())

			return nil
		}),
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "Concurrent transactions")
	cmd.Flags().IntVarP(&opts.txnsPerWork, "txns", "t", 50, "Committed transactions per worker")
	cmd.Flags().IntVar(&opts.tuplesPerTxn, "tuples", 10, "Tuples inserted per transaction")
	rootCmd.AddCommand(cmd)
}

func runBench(
	ctx context.Context,
	d *db.Database,
	tableID common.FileID,
	desc *tuple.TupleDesc,
	opts benchOptions,
	res *benchResult,
) error {
	eg, ctx := errgroup.WithContext(ctx)

	for w := range opts.workers {
		eg.Go(func() error {
			for seq := 0; seq < opts.txnsPerWork; {
				if err := ctx.Err(); err != nil {
					return err
				}

				txnID := d.Begin()
				err := benchTxn(d, txnID, tableID, desc, w, seq, opts.tuplesPerTxn)

				if errors.Is(err, common.ErrTxnAborted) {
					res.aborted.Add(1)
					if err := d.Abort(txnID); err != nil {
						return err
					}
					continue
				}
				if err != nil {
					_ = d.Abort(txnID)
					return err
				}

				if err := d.Commit(txnID); err != nil {
					return err
				}
				res.committed.Add(1)
				res.inserted.Add(int64(opts.tuplesPerTxn))
				seq++
			}
			return nil
		})
	}

	return eg.Wait()
}

// benchTxn inserts a batch and then reads the table back, so writers and
// readers of the same pages run into each other.
func benchTxn(
	d *db.Database,
	txnID common.TxnID,
	tableID common.FileID,
	desc *tuple.TupleDesc,
	worker int,
	seq int,
	n int,
) error {
	for i := range n {
		t := tuple.New(
			desc,
			tuple.IntField(int32(worker)), //nolint:gosec
			tuple.IntField(int32(seq*n+i)), //nolint:gosec
			tuple.StringField(fmt.Sprintf("w%d-%d", worker, seq)),
		)
		if err := d.Pool().InsertTuple(txnID, tableID, t); err != nil {
			return err
		}
	}

	scan, err := query.NewSeqScan(txnID, d.Catalog(), tableID, "")
	if err != nil {
		return err
	}

	mine := query.NewFilter(query.Predicate{
		Field:   0,
		Op:      tuple.OpEquals,
		Operand: tuple.IntField(int32(worker)), //nolint:gosec
	}, scan)
	if err := mine.Open(); err != nil {
		return err
	}
	defer mine.Close()

	_, err = query.Collect(mine)
	return err
}
