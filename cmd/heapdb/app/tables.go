package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/heapdb/src/catalog"
	"github.com/Blackdeer1524/heapdb/src/db"
)

func initTables() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "Lists the tables of the database",
		Args:  cobra.NoArgs,
		RunE: rootCmd.WithDatabase(func(_ context.Context, cmd *cobra.Command, _ []string, d *db.Database) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tPAGES\tSCHEMA")

			c := d.Catalog()
			for _, id := range c.TableIDs() {
				table, err := c.Table(id)
				if err != nil {
					return err
				}

				pages, err := table.File.NumPages()
				if err != nil {
					return err
				}

				schema := catalog.TableSchema{
					Name:       table.Name,
					Desc:       table.File.TupleDesc(),
					PrimaryKey: table.PrimaryKey,
				}
				_, _ = fmt.Fprintf(w, "%d\t%d\t%s\n", id, pages, schema)
			}

			return w.Flush()
		}),
	})
}
