package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/heapdb/src/db"
	"github.com/Blackdeer1524/heapdb/src/stats"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

type statsOptions struct {
	where   string
	buckets int
}

// predicate is a parsed "field op value" filter whose value is typed per
// table, since the field may have a different type in every table.
type predicate struct {
	field string
	op    tuple.CompareOp
	value string
}

func parsePredicate(s string) (predicate, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return predicate{}, fmt.Errorf("predicate %q must look like \"field op value\"", s)
	}

	op, err := tuple.ParseCompareOp(parts[1])
	if err != nil {
		return predicate{}, err
	}

	return predicate{field: parts[0], op: op, value: parts[2]}, nil
}

func initStats() {
	var opts statsOptions

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints size statistics of every table and estimates predicate selectivity",
		Args:  cobra.NoArgs,
		RunE: rootCmd.WithDatabase(func(_ context.Context, cmd *cobra.Command, _ []string, d *db.Database) (err error) {
			if opts.buckets <= 0 {
				return fmt.Errorf("--buckets must be positive, got %d", opts.buckets)
			}

			var pred *predicate
			if opts.where != "" {
				p, err := parsePredicate(opts.where)
				if err != nil {
					return err
				}
				pred = &p
			}

			txnID := d.Begin()
			defer func() {
				if err != nil {
					_ = d.Abort(txnID)
					return
				}
				err = d.Commit(txnID)
			}()

			all, err := stats.ComputeAll(txnID, d.Catalog(), opts.buckets, stats.DefaultIOCostPerPage, d.Logger())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "TABLE\tPAGES\tSLOTS/PAGE\tTUPLES\tSCAN COST"
			if pred != nil {
				header += "\tSELECTIVITY\tEST. ROWS"
			}
			_, _ = fmt.Fprintln(w, header)

			c := d.Catalog()
			for _, name := range c.TableNames() {
				s := all[name]

				file, err := c.HeapFile(s.TableID())
				if err != nil {
					return err
				}

				slots := heap.SlotsPerPage(file.PageSize(), file.TupleDesc().Size())
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f",
					name, s.NumPages(), slots, s.TotalTuples(), s.EstimateScanCost())

				if pred != nil {
					if err := printEstimate(w, s, file.TupleDesc(), *pred); err != nil {
						return err
					}
				}
				_, _ = fmt.Fprintln(w)
			}

			pool := d.Pool()
			_, _ = fmt.Fprintf(w, "\nbuffer pool\t%d/%d pages\n", pool.Size(), pool.Capacity())

			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&opts.where, "where", "", "Estimate the selectivity of \"field op value\"")
	cmd.Flags().IntVar(&opts.buckets, "buckets", stats.DefaultBuckets, "Histogram buckets per field")
	rootCmd.AddCommand(cmd)
}

func printEstimate(w *tabwriter.Writer, s *stats.TableStats, desc *tuple.TupleDesc, pred predicate) error {
	field, err := desc.IndexOf(pred.field)
	if err != nil {
		_, _ = fmt.Fprint(w, "\t-\t-")
		return nil //nolint:nilerr
	}

	value, err := tuple.ParseField(desc.FieldType(field), pred.value)
	if err != nil {
		return err
	}

	sel := s.EstimateSelectivity(field, pred.op, value)
	_, _ = fmt.Fprintf(w, "\t%.3f\t%d", sel, s.EstimateTableCardinality(sel))
	return nil
}
