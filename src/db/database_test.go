package db

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/query"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

func accountsDesc() *tuple.TupleDesc {
	return tuple.NewTupleDesc(
		[]tuple.FieldType{tuple.Int(), tuple.String(12)},
		[]string{"id", "owner"},
	)
}

func account(id int32, owner string) *tuple.Tuple {
	return tuple.New(accountsDesc(), tuple.IntField(id), tuple.StringField(owner))
}

func smallOptions() Options {
	opts := DefaultOptions("/db")
	opts.PageSize = 64
	opts.PoolPages = 2
	opts.EvictionPolicy = "lru"
	return opts
}

func open(t *testing.T, fs afero.Fs, opts Options) *Database {
	d, err := Open(opts, fs, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return d
}

func insert(d *Database, txnID common.TxnID, tableID common.FileID, tuples ...*tuple.Tuple) error {
	ins, err := query.NewInsert(txnID, d.Pool(), d.Catalog(), query.NewValues(accountsDesc(), tuples...), tableID)
	if err != nil {
		return err
	}

	if err := ins.Open(); err != nil {
		return err
	}
	defer ins.Close()

	_, err = query.Collect(ins)
	return err
}

func count(t *testing.T, d *Database, tableID common.FileID) int {
	txnID := d.Begin()

	scan, err := query.NewSeqScan(txnID, d.Catalog(), tableID, "")
	require.NoError(t, err)
	require.NoError(t, scan.Open())

	res, err := query.Collect(scan)
	require.NoError(t, err)
	scan.Close()

	require.NoError(t, d.Commit(txnID))
	return len(res)
}

func TestCreateTableSurvivesReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := open(t, fs, smallOptions())

	tableID, err := d.CreateTable("accounts", accountsDesc(), "id")
	require.NoError(t, err)

	_, err = d.CreateTable("accounts", accountsDesc(), "id")
	assert.Error(t, err)

	txnID := d.Begin()
	for i := range 20 {
		require.NoError(t, insert(d, txnID, tableID, account(int32(i), "alice"))) //nolint:gosec
	}
	require.NoError(t, d.Commit(txnID))
	require.NoError(t, d.Close())

	reopened := open(t, fs, smallOptions())
	assert.Equal(t, []string{"accounts"}, reopened.Catalog().TableNames())

	id, err := reopened.Catalog().TableID("accounts")
	require.NoError(t, err)
	assert.Equal(t, tableID, id)

	pk, err := reopened.Catalog().PrimaryKey(id)
	require.NoError(t, err)
	assert.Equal(t, "id", pk)

	assert.Equal(t, 20, count(t, reopened, id))
}

func TestCreateTableWithoutName(t *testing.T) {
	d := open(t, afero.NewMemMapFs(), smallOptions())

	tableID, err := d.CreateTable("", accountsDesc(), "")
	require.NoError(t, err)

	name, err := d.Catalog().TableName(tableID)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestOpenRejectsUnknownPolicy(t *testing.T) {
	opts := smallOptions()
	opts.EvictionPolicy = "clock"

	_, err := Open(opts, afero.NewMemMapFs(), zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestEvictedPagesReachDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := open(t, fs, smallOptions())

	tableID, err := d.CreateTable("accounts", accountsDesc(), "")
	require.NoError(t, err)

	// far more pages than the pool holds, inserted without committing
	txnID := d.Begin()
	for i := range 30 {
		require.NoError(t, insert(d, txnID, tableID, account(int32(i), "bob"))) //nolint:gosec
	}
	assert.LessOrEqual(t, d.Pool().Size(), 2)

	// eviction already wrote most pages, without commit or close
	reader := open(t, fs, smallOptions())
	assert.Greater(t, count(t, reader, tableID), 0)

	require.NoError(t, d.Commit(txnID))
	assert.Equal(t, 30, count(t, open(t, fs, smallOptions()), tableID))
}

func TestAbortReleasesLocks(t *testing.T) {
	d := open(t, afero.NewMemMapFs(), smallOptions())

	tableID, err := d.CreateTable("accounts", accountsDesc(), "")
	require.NoError(t, err)

	writer := d.Begin()
	require.NoError(t, insert(d, writer, tableID, account(1, "carol")))
	require.NotEmpty(t, d.LockManager().LockedPages(writer))

	require.NoError(t, d.Abort(writer))
	assert.Empty(t, d.LockManager().LockedPages(writer))

	// no rollback: the aborted insert is still visible
	assert.Equal(t, 1, count(t, d, tableID))
}

func TestDeadlockAbortsExactlyOne(t *testing.T) {
	d := open(t, afero.NewMemMapFs(), DefaultOptions("/db"))

	first, err := d.CreateTable("first", accountsDesc(), "")
	require.NoError(t, err)
	second, err := d.CreateTable("second", accountsDesc(), "")
	require.NoError(t, err)

	a := d.Begin()
	b := d.Begin()
	require.NoError(t, insert(d, a, first, account(1, "a")))
	require.NoError(t, insert(d, b, second, account(2, "b")))

	results := make(chan error, 2)
	go func() {
		results <- insert(d, a, second, account(3, "a"))
	}()

	select {
	case err := <-results:
		t.Fatalf("txn a must block on the second table, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	go func() {
		results <- insert(d, b, first, account(4, "b"))
	}()

	var aborted, granted int
	for range 2 {
		select {
		case err := <-results:
			if errors.Is(err, common.ErrTxnAborted) {
				aborted++
				continue
			}
			require.NoError(t, err)
			granted++
		case <-time.After(5 * time.Second):
			t.Fatal("deadlock was not resolved")
		}
	}

	assert.Equal(t, 1, aborted)
	assert.Equal(t, 1, granted)

	require.NoError(t, d.Abort(b))
	require.NoError(t, d.Commit(a))
}

func TestConcurrentTransactionsWithRetries(t *testing.T) {
	d := open(t, afero.NewMemMapFs(), smallOptions())

	tableIDs := make([]common.FileID, 2)
	for i, name := range []string{"left", "right"} {
		id, err := d.CreateTable(name, accountsDesc(), "")
		require.NoError(t, err)
		tableIDs[i] = id
	}

	const (
		workers   = 6
		perWorker = 10
	)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			// alternate the table order so transactions run into each other
			order := []common.FileID{tableIDs[w%2], tableIDs[(w+1)%2]}

			for i := 0; i < perWorker; {
				txnID := d.Begin()

				err := insert(d, txnID, order[0], account(int32(w), "x")) //nolint:gosec
				if err == nil {
					err = insert(d, txnID, order[1], account(int32(w), "y")) //nolint:gosec
				}

				if errors.Is(err, common.ErrTxnAborted) {
					if err := d.Abort(txnID); err != nil {
						return err
					}
					continue
				}
				if err != nil {
					return err
				}

				if err := d.Commit(txnID); err != nil {
					return err
				}
				i++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// aborted transactions aren't rolled back, so at least every committed
	// insert is there
	assert.GreaterOrEqual(t, count(t, d, tableIDs[0]), workers*perWorker)
	assert.GreaterOrEqual(t, count(t, d, tableIDs[1]), workers*perWorker)
}
