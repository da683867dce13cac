package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

type Table struct {
	File       *heap.File
	Name       string
	PrimaryKey string
}

func (t *Table) ID() common.FileID {
	return t.File.FileID()
}

// Catalog keeps track of the tables of a database. Lookups by id never block;
// adding tables is serialized.
type Catalog struct {
	tables *xsync.MapOf[common.FileID, *Table]

	mu     sync.RWMutex
	byName *btree.Map[string, common.FileID]

	log common.Logger
}

var _ bufferpool.Catalog = &Catalog{}

func New(log common.Logger) *Catalog {
	return &Catalog{
		tables: xsync.NewMapOf[common.FileID, *Table](),
		byName: btree.NewMap[string, common.FileID](0),
		log:    log,
	}
}

// AddTable registers the file under the given name. A table with the same id
// or the same name is replaced. An empty name is replaced by a random one.
func (c *Catalog) AddTable(file *heap.File, name string, primaryKey string) *Table {
	if name == "" {
		name = uuid.NewString()
	}

	table := &Table{File: file, Name: name, PrimaryKey: primaryKey}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.tables.Load(file.FileID()); ok {
		c.byName.Delete(old.Name)
	}
	if oldID, ok := c.byName.Get(name); ok {
		c.tables.Delete(oldID)
	}

	c.tables.Store(file.FileID(), table)
	c.byName.Set(name, file.FileID())

	c.log.Infow(
		"added table",
		"name", name,
		"id", file.FileID(),
		"schema", file.TupleDesc().String(),
	)

	return table
}

func (c *Catalog) Table(id common.FileID) (*Table, error) {
	table, ok := c.tables.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: table %d", common.ErrNotFound, id)
	}
	return table, nil
}

func (c *Catalog) DBFile(fileID common.FileID) (bufferpool.DBFile, error) {
	table, err := c.Table(fileID)
	if err != nil {
		return nil, err
	}
	return table.File, nil
}

func (c *Catalog) HeapFile(id common.FileID) (*heap.File, error) {
	table, err := c.Table(id)
	if err != nil {
		return nil, err
	}
	return table.File, nil
}

func (c *Catalog) TableID(name string) (common.FileID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byName.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: table %q", common.ErrNotFound, name)
	}
	return id, nil
}

func (c *Catalog) TupleDesc(id common.FileID) (*tuple.TupleDesc, error) {
	table, err := c.Table(id)
	if err != nil {
		return nil, err
	}
	return table.File.TupleDesc(), nil
}

func (c *Catalog) PrimaryKey(id common.FileID) (string, error) {
	table, err := c.Table(id)
	if err != nil {
		return "", err
	}
	return table.PrimaryKey, nil
}

func (c *Catalog) TableName(id common.FileID) (string, error) {
	table, err := c.Table(id)
	if err != nil {
		return "", err
	}
	return table.Name, nil
}

// TableNames returns the names of all tables in lexicographic order.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, c.byName.Len())
	c.byName.Scan(func(name string, _ common.FileID) bool {
		names = append(names, name)
		return true
	})
	return names
}

// TableIDs returns the table ids ordered by table name.
func (c *Catalog) TableIDs() []common.FileID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]common.FileID, 0, c.byName.Len())
	c.byName.Scan(func(_ string, id common.FileID) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables.Clear()
	c.byName = btree.NewMap[string, common.FileID](0)
}
