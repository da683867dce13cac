package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/catalog"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
	"github.com/Blackdeer1524/heapdb/src/txns"
)

const SchemaFileName = "schema.txt"

type Options struct {
	DataDir        string
	PageSize       int
	PoolPages      int
	EvictionPolicy string
}

func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:        dataDir,
		PageSize:       heap.DefaultPageSize,
		PoolPages:      bufferpool.DefaultPoolSize,
		EvictionPolicy: bufferpool.PolicyRandom,
	}
}

// Database owns the lock manager, the catalog and the buffer pool of one
// data directory. Every transaction of the process goes through it.
type Database struct {
	fs   afero.Fs
	opts Options

	locks   *txns.LockManager
	catalog *catalog.Catalog
	pool    *bufferpool.Manager

	txnIDs txns.TxnIDGenerator

	schemaMu sync.Mutex

	log common.Logger
}

// Open loads the schema file of the data directory if there is one.
func Open(opts Options, fs afero.Fs, log common.Logger) (*Database, error) {
	replacer, err := bufferpool.NewReplacer(opts.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	if err := fs.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", common.ErrStorage, err)
	}

	locks := txns.NewLockManager(log)
	c := catalog.New(log)

	pool, err := bufferpool.New(opts.PoolPages, replacer, c, locks, log)
	if err != nil {
		return nil, err
	}

	d := &Database{
		fs:      fs,
		opts:    opts,
		locks:   locks,
		catalog: c,
		pool:    pool,
		log:     log,
	}

	exists, err := afero.Exists(fs, d.schemaPath())
	if err != nil {
		return nil, fmt.Errorf("%w: stat schema: %w", common.ErrStorage, err)
	}
	if exists {
		if err := c.LoadSchema(fs, d.schemaPath(), opts.PageSize, pool); err != nil {
			return nil, err
		}
	}

	log.Infow(
		"database opened",
		"dir", opts.DataDir,
		"tables", len(c.TableNames()),
		"pool_pages", opts.PoolPages,
		"policy", opts.EvictionPolicy,
	)

	return d, nil
}

func (d *Database) schemaPath() string {
	return filepath.Join(d.opts.DataDir, SchemaFileName)
}

// CreateTable adds a table and records it in the schema file. An empty name
// gets a generated one.
func (d *Database) CreateTable(
	name string,
	desc *tuple.TupleDesc,
	primaryKey string,
) (common.FileID, error) {
	if name == "" {
		name = "t_" + uuid.NewString()
	}
	if _, err := d.catalog.TableID(name); err == nil {
		return 0, errors.Errorf("table %q already exists", name)
	}

	file, err := heap.NewFile(
		d.fs,
		catalog.DataFilePath(d.opts.DataDir, name),
		desc,
		d.opts.PageSize,
		d.pool,
		d.log,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "create table %s", name)
	}

	schema := catalog.TableSchema{Name: name, Desc: desc, PrimaryKey: primaryKey}
	if err := d.appendSchema(schema); err != nil {
		return 0, err
	}

	d.catalog.AddTable(file, name, primaryKey)

	return file.FileID(), nil
}

func (d *Database) appendSchema(schema catalog.TableSchema) error {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()

	f, err := d.fs.OpenFile(d.schemaPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open schema: %w", common.ErrStorage, err)
	}
	defer f.Close()

	if _, err := f.WriteString(schema.String() + "\n"); err != nil {
		return fmt.Errorf("%w: write schema: %w", common.ErrStorage, err)
	}

	return nil
}

func (d *Database) Begin() common.TxnID {
	txnID := d.txnIDs.Next()
	d.log.Debugw("transaction started", "txn", txnID)
	return txnID
}

// Commit forces the pages the transaction dirtied to disk and releases its
// locks.
func (d *Database) Commit(txnID common.TxnID) error {
	if err := d.pool.TransactionComplete(txnID, true); err != nil {
		return errors.Wrapf(err, "commit txn %d", txnID)
	}

	d.log.Debugw("transaction committed", "txn", txnID)
	return nil
}

// Abort releases the locks of the transaction. Changes it made are not
// rolled back: pages it dirtied stay in the pool and may reach the disk.
func (d *Database) Abort(txnID common.TxnID) error {
	if err := d.pool.TransactionComplete(txnID, false); err != nil {
		return errors.Wrapf(err, "abort txn %d", txnID)
	}

	d.log.Debugw("transaction aborted", "txn", txnID)
	return nil
}

// Close writes every dirty page to disk.
func (d *Database) Close() error {
	if err := d.pool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "flush pool")
	}

	d.log.Infow("database closed", "dir", d.opts.DataDir)
	return nil
}

func (d *Database) Options() Options {
	return d.opts
}

func (d *Database) Pool() *bufferpool.Manager {
	return d.pool
}

func (d *Database) Catalog() *catalog.Catalog {
	return d.catalog
}

func (d *Database) LockManager() *txns.LockManager {
	return d.locks
}

func (d *Database) Logger() common.Logger {
	return d.log
}
