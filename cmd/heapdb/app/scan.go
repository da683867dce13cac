package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/heapdb/src/db"
	"github.com/Blackdeer1524/heapdb/src/query"
)

func initScan() {
	var limit int

	cmd := &cobra.Command{
		Use:   "scan <table>",
		Short: "Prints the tuples of a table",
		Args:  cobra.ExactArgs(1),
		RunE: rootCmd.WithDatabase(func(_ context.Context, cmd *cobra.Command, args []string, d *db.Database) (err error) {
			tableID, err := d.Catalog().TableID(args[0])
			if err != nil {
				return err
			}

			txnID := d.Begin()
			defer func() {
				if err != nil {
					_ = d.Abort(txnID)
					return
				}
				err = d.Commit(txnID)
			}()

			scan, err := query.NewSeqScan(txnID, d.Catalog(), tableID, "")
			if err != nil {
				return err
			}
			if err := scan.Open(); err != nil {
				return err
			}
			defer scan.Close()

			desc := scan.TupleDesc()
			names := make([]string, desc.NumFields())
			for i := range names {
				names[i] = desc.FieldName(i)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, strings.Join(names, "\t"))

			for n := 0; limit <= 0 || n < limit; n++ {
				ok, err := scan.HasNext()
				if err != nil {
					return err
				}
				if !ok {
					break
				}

				t, err := scan.Next()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, t)
			}

			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after that many tuples")
	rootCmd.AddCommand(cmd)
}
