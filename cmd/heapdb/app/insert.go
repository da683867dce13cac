package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/heapdb/src/db"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

func initInsert() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "insert <table> <value>...",
		Short: "Inserts one tuple into a table",
		Args:  cobra.MinimumNArgs(2),
		RunE: rootCmd.WithDatabase(func(_ context.Context, cmd *cobra.Command, args []string, d *db.Database) error {
			tableID, err := d.Catalog().TableID(args[0])
			if err != nil {
				return err
			}

			desc, err := d.Catalog().TupleDesc(tableID)
			if err != nil {
				return err
			}

			values := args[1:]
			if len(values) != desc.NumFields() {
				return fmt.Errorf("table %s has %d fields, got %d values", args[0], desc.NumFields(), len(values))
			}

			fields := make([]tuple.Field, len(values))
			for i, v := range values {
				if fields[i], err = tuple.ParseField(desc.FieldType(i), v); err != nil {
					return fmt.Errorf("field %s: %w", desc.FieldName(i), err)
				}
			}

			t := tuple.New(desc, fields...)

			txnID := d.Begin()
			if err := d.Pool().InsertTuple(txnID, tableID, t); err != nil {
				_ = d.Abort(txnID)
				return err
			}
			if err := d.Commit(txnID); err != nil {
				return err
			}

			rid, _ := t.RecordID()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "inserted %s\n", rid)
			return nil
		}),
	})
}
