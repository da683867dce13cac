package heap

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
	"github.com/Blackdeer1524/heapdb/src/txns"
)

type fileCatalog struct {
	files map[common.FileID]bufferpool.DBFile
}

func (c *fileCatalog) DBFile(fileID common.FileID) (bufferpool.DBFile, error) {
	f, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %d", common.ErrNotFound, fileID)
	}
	return f, nil
}

func intDesc() *tuple.TupleDesc {
	return tuple.NewTupleDesc([]tuple.FieldType{tuple.Int()}, []string{"v"})
}

func intTuple(v int32) *tuple.Tuple {
	return tuple.New(intDesc(), tuple.IntField(v))
}

// pageSize 9 fits exactly two int tuples: one bitmap byte and two 4 byte slots
const twoSlotPageSize = 9

type env struct {
	fs   afero.Fs
	pool *bufferpool.Manager
	file *File
}

func setup(t *testing.T, poolSize int, pageSize int, desc *tuple.TupleDesc) env {
	log := zaptest.NewLogger(t).Sugar()

	fs := afero.NewMemMapFs()
	catalog := &fileCatalog{files: map[common.FileID]bufferpool.DBFile{}}

	pool, err := bufferpool.New(
		poolSize,
		bufferpool.NewLRUReplacer(),
		catalog,
		txns.NewLockManager(log),
		log,
	)
	require.NoError(t, err)

	file, err := NewFile(fs, "/data/table.dat", desc, pageSize, pool, log)
	require.NoError(t, err)
	catalog.files[file.FileID()] = file

	return env{fs: fs, pool: pool, file: file}
}

func scanAll(t *testing.T, it *Iterator) []*tuple.Tuple {
	var res []*tuple.Tuple
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return res
		}

		next, err := it.Next()
		require.NoError(t, err)
		res = append(res, next)
	}
}

func TestSlotsPerPage(t *testing.T) {
	assert.Equal(t, 992, SlotsPerPage(4096, 4))
	assert.Equal(t, 504, SlotsPerPage(4096, 8))
	assert.Equal(t, 2, SlotsPerPage(twoSlotPageSize, 4))
	assert.Equal(t, 0, SlotsPerPage(4, 4))

	p := NewEmptyPage(common.PageIdentity{}, intDesc(), 4096)
	assert.Equal(t, 992, p.NumSlots())
	assert.Equal(t, 992, p.NumEmptySlots())
	assert.Len(t, p.GetData(), 4096)
}

func TestPageRoundTrip(t *testing.T) {
	desc := tuple.NewTupleDesc(
		[]tuple.FieldType{tuple.Int(), tuple.String(8)},
		[]string{"id", "name"},
	)
	ident := common.PageIdentity{FileID: 3, PageID: 5}

	p := NewEmptyPage(ident, desc, 256)
	for i := range 10 {
		tup := tuple.New(desc, tuple.IntField(int32(i)), tuple.StringField(fmt.Sprintf("n%d", i))) //nolint:gosec
		require.NoError(t, p.InsertTuple(tup))
	}

	deleted := p.Tuples()[3]
	require.NoError(t, p.DeleteTuple(deleted))

	restored, err := NewPage(ident, desc, p.GetData())
	require.NoError(t, err)

	for slot := range p.NumSlots() {
		assert.Equal(t, p.IsSlotUsed(slot), restored.IsSlotUsed(slot), "slot %d", slot)
	}

	expected := p.Tuples()
	actual := restored.Tuples()
	require.Len(t, actual, 9)
	for i := range expected {
		assert.Equal(t, expected[i].Fields(), actual[i].Fields())

		expectedRID, _ := expected[i].RecordID()
		actualRID, ok := actual[i].RecordID()
		require.True(t, ok)
		assert.Equal(t, expectedRID, actualRID)
	}
	assert.False(t, restored.IsSlotUsed(3))
}

func TestPageBitmapLayout(t *testing.T) {
	p := NewEmptyPage(common.PageIdentity{}, intDesc(), 64)

	var inserted []*tuple.Tuple
	for i := range 10 {
		tup := intTuple(int32(i)) //nolint:gosec
		require.NoError(t, p.InsertTuple(tup))
		inserted = append(inserted, tup)
	}
	for _, tup := range inserted[1:9] {
		require.NoError(t, p.DeleteTuple(tup))
	}

	data := p.GetData()
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, byte(0x02), data[1])

	// slot 9 starts right after the bitmap
	slots := SlotsPerPage(64, 4)
	offset := (slots+7)/8 + 9*4
	assert.Equal(t, []byte{0, 0, 0, 9}, data[offset:offset+4])
}

func TestPageInsertAndDeleteFaults(t *testing.T) {
	ident := common.PageIdentity{FileID: 1, PageID: 0}
	p := NewEmptyPage(ident, intDesc(), twoSlotPageSize)

	first := intTuple(1)
	require.NoError(t, p.InsertTuple(first))
	require.NoError(t, p.InsertTuple(intTuple(2)))
	assert.ErrorIs(t, p.InsertTuple(intTuple(3)), ErrPageFull)

	other := tuple.New(tuple.NewTupleDesc([]tuple.FieldType{tuple.String(4)}, nil), tuple.StringField("x"))
	assert.ErrorIs(t, p.InsertTuple(other), ErrDescMismatch)

	require.NoError(t, p.DeleteTuple(first))
	assert.ErrorIs(t, p.DeleteTuple(first), common.ErrNotFound)

	elsewhere := intTuple(4)
	elsewhere.SetRecordID(common.NewRecordID(common.PageIdentity{FileID: 1, PageID: 7}, 0))
	assert.ErrorIs(t, p.DeleteTuple(elsewhere), common.ErrNotFound)

	assert.ErrorIs(t, p.DeleteTuple(intTuple(5)), common.ErrNotFound)
}

func TestPageDirtiness(t *testing.T) {
	p := NewEmptyPage(common.PageIdentity{}, intDesc(), 64)
	assert.False(t, p.IsDirty())

	p.MarkDirty(true, 4)
	assert.True(t, p.IsDirty())
	assert.Equal(t, common.TxnID(4), p.Dirtier())

	p.MarkDirty(false, 4)
	assert.False(t, p.IsDirty())
	assert.Equal(t, common.NilTxnID, p.Dirtier())
}

func TestFileIDIsStable(t *testing.T) {
	e := setup(t, 4, 64, intDesc())

	again, err := NewFile(e.fs, "/data/../data/table.dat", intDesc(), 64, e.pool, common.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, e.file.FileID(), again.FileID())

	other, err := NewFile(e.fs, "/data/other.dat", intDesc(), 64, e.pool, common.NopLogger())
	require.NoError(t, err)
	assert.NotEqual(t, e.file.FileID(), other.FileID())
}

func TestNewFileRejectsTinyPages(t *testing.T) {
	_, err := NewFile(afero.NewMemMapFs(), "/t.dat", intDesc(), 4, nil, common.NopLogger())
	assert.Error(t, err)
}

func TestInsertAppendsPageWhenFull(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())

	numPages, err := e.file.NumPages()
	require.NoError(t, err)
	require.Zero(t, numPages)

	var last *tuple.Tuple
	for i := range 3 {
		last = intTuple(int32(i)) //nolint:gosec
		require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), last))
	}

	numPages, err = e.file.NumPages()
	require.NoError(t, err)
	assert.Equal(t, 2, numPages)

	rid, ok := last.RecordID()
	require.True(t, ok)
	assert.Equal(t, common.PageID(1), rid.PageID)
	assert.Equal(t, uint16(0), rid.SlotNum)
	assert.Equal(t, e.file.FileID(), rid.FileID)

	assert.True(t, e.pool.HoldsLock(1, rid.PageIdentity()))
}

func TestWritePageReadPageRoundTrip(t *testing.T) {
	e := setup(t, 4, 64, intDesc())

	for i := range 5 {
		require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(int32(i*10)))) //nolint:gosec
	}
	require.NoError(t, e.pool.TransactionComplete(1, true))

	p, err := e.file.ReadPage(0)
	require.NoError(t, err)

	values := make([]tuple.Field, 0, 5)
	for _, tup := range assertHeapPage(t, p).Tuples() {
		values = append(values, tup.Field(0))
	}
	assert.Equal(
		t,
		[]tuple.Field{tuple.IntField(0), tuple.IntField(10), tuple.IntField(20), tuple.IntField(30), tuple.IntField(40)},
		values,
	)
}

func assertHeapPage(t *testing.T, p bufferpool.Page) *Page {
	hp, ok := p.(*Page)
	require.True(t, ok)
	return hp
}

func TestReadPageFaults(t *testing.T) {
	e := setup(t, 4, 64, intDesc())

	_, err := e.file.ReadPage(0)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(1)))
	_, err = e.file.ReadPage(1)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestWritePageStorageFault(t *testing.T) {
	e := setup(t, 4, 64, intDesc())
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(1)))

	p, err := e.file.ReadPage(0)
	require.NoError(t, err)

	e.file.fs = afero.NewReadOnlyFs(e.fs)
	assert.ErrorIs(t, e.file.WritePage(p), common.ErrStorage)
}

func TestEvictedDirtyPageIsOnDisk(t *testing.T) {
	e := setup(t, 1, twoSlotPageSize, intDesc())

	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(1)))
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(2)))

	page0 := common.PageIdentity{FileID: e.file.FileID(), PageID: 0}
	require.True(t, e.pool.IsCached(page0))

	// the third insert appends page 1, which pushes page 0 out of the pool
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(3)))
	require.False(t, e.pool.IsCached(page0))

	onDisk, err := e.file.ReadPage(0)
	require.NoError(t, err)

	tuples := assertHeapPage(t, onDisk).Tuples()
	require.Len(t, tuples, 2)
	assert.Equal(t, tuple.IntField(1), tuples[0].Field(0))
	assert.Equal(t, tuple.IntField(2), tuples[1].Field(0))
}

func TestDeleteTuple(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())

	var inserted []*tuple.Tuple
	for i := range 4 {
		tup := intTuple(int32(i)) //nolint:gosec
		require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), tup))
		inserted = append(inserted, tup)
	}

	require.NoError(t, e.pool.DeleteTuple(1, inserted[2]))
	assert.ErrorIs(t, e.pool.DeleteTuple(1, inserted[2]), common.ErrNotFound)

	it := e.file.Iterator(1)
	require.NoError(t, it.Open())
	defer it.Close()

	var values []tuple.Field
	for _, tup := range scanAll(t, it) {
		values = append(values, tup.Field(0))
	}
	assert.Equal(t, []tuple.Field{tuple.IntField(0), tuple.IntField(1), tuple.IntField(3)}, values)

	// the freed slot is reused by the next insert
	reused := intTuple(9)
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), reused))
	rid, _ := reused.RecordID()
	assert.Equal(t, common.PageID(1), rid.PageID)
	assert.Equal(t, uint16(0), rid.SlotNum)
}

func TestInsertSameTupleTwice(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())

	row := intTuple(5)
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), row))
	first, _ := row.RecordID()
	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), row))
	second, _ := row.RecordID()
	assert.NotEqual(t, first, second)

	it := e.file.Iterator(1)
	require.NoError(t, it.Open())
	stored := scanAll(t, it)
	it.Close()
	require.Len(t, stored, 2)

	rids := map[common.RecordID]struct{}{}
	for _, tup := range stored {
		rid, ok := tup.RecordID()
		require.True(t, ok)
		rids[rid] = struct{}{}
	}
	assert.Equal(t, map[common.RecordID]struct{}{first: {}, second: {}}, rids)

	for _, tup := range stored {
		require.NoError(t, e.pool.DeleteTuple(1, tup))
	}

	it = e.file.Iterator(1)
	require.NoError(t, it.Open())
	defer it.Close()
	assert.Empty(t, scanAll(t, it))
}

func TestPageTuplesAreCopies(t *testing.T) {
	p := NewEmptyPage(common.PageIdentity{FileID: 1}, intDesc(), twoSlotPageSize)

	row := intTuple(1)
	require.NoError(t, p.InsertTuple(row))

	row.SetField(0, tuple.IntField(100))
	p.Tuples()[0].SetField(0, tuple.IntField(200))

	tuples := p.Tuples()
	require.Len(t, tuples, 1)
	assert.Equal(t, tuple.IntField(1), tuples[0].Field(0))
	assert.False(t, p.IsDirty())
}

func TestNumPagesPartialPage(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/t.dat", make([]byte, 3*4096), 0o600))

	f, err := NewFile(fs, "/data/t.dat", intDesc(), 8192, nil, log)
	require.NoError(t, err)

	_, err = f.NumPages()
	assert.ErrorIs(t, err, common.ErrStorage)

	_, err = f.ReadPage(0)
	assert.ErrorIs(t, err, common.ErrStorage)

	_, err = f.InsertTuple(1, intTuple(1))
	assert.ErrorIs(t, err, common.ErrStorage)
}

func TestAppendedPageReachesDiskOnCommit(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())

	require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(7)))

	// the file grows by a zeroed page, the tuple itself only lives in the pool
	onDisk, err := e.file.ReadPage(0)
	require.NoError(t, err)
	assert.Empty(t, assertHeapPage(t, onDisk).Tuples())

	require.NoError(t, e.pool.TransactionComplete(1, true))

	onDisk, err = e.file.ReadPage(0)
	require.NoError(t, err)
	tuples := assertHeapPage(t, onDisk).Tuples()
	require.Len(t, tuples, 1)
	assert.Equal(t, tuple.IntField(7), tuples[0].Field(0))
}

func TestIteratorProtocol(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())
	for i := range 5 {
		require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(int32(i)))) //nolint:gosec
	}
	require.NoError(t, e.pool.TransactionComplete(1, true))

	it := e.file.Iterator(2)

	_, err := it.HasNext()
	assert.ErrorIs(t, err, common.ErrIllegalState)
	_, err = it.Next()
	assert.ErrorIs(t, err, common.ErrIllegalState)
	assert.ErrorIs(t, it.Rewind(), common.ErrIllegalState)

	require.NoError(t, it.Open())

	first := scanAll(t, it)
	require.Len(t, first, 5)
	for i, tup := range first {
		assert.Equal(t, tuple.IntField(int32(i)), tup.Field(0)) //nolint:gosec
	}

	_, err = it.Next()
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, it.Rewind())
	assert.Len(t, scanAll(t, it), 5)

	for pageID := range 3 {
		pageIdent := common.PageIdentity{FileID: e.file.FileID(), PageID: common.PageID(pageID)} //nolint:gosec
		assert.True(t, e.pool.HoldsLock(2, pageIdent))
	}

	it.Close()
	_, err = it.HasNext()
	assert.ErrorIs(t, err, common.ErrIllegalState)
}

func TestIteratorIsLazy(t *testing.T) {
	e := setup(t, 4, twoSlotPageSize, intDesc())
	for i := range 6 {
		require.NoError(t, e.pool.InsertTuple(1, e.file.FileID(), intTuple(int32(i)))) //nolint:gosec
	}
	require.NoError(t, e.pool.TransactionComplete(1, true))

	it := e.file.Iterator(2)
	require.NoError(t, it.Open())
	defer it.Close()

	_, err := it.Next()
	require.NoError(t, err)

	page0 := common.PageIdentity{FileID: e.file.FileID(), PageID: 0}
	page2 := common.PageIdentity{FileID: e.file.FileID(), PageID: 2}
	assert.True(t, e.pool.HoldsLock(2, page0))
	assert.False(t, e.pool.HoldsLock(2, page2))
}

func TestConcurrentInserts(t *testing.T) {
	e := setup(t, 8, 64, intDesc())

	var gen txns.TxnIDGenerator
	const (
		workers   = 8
		perWorker = 25
	)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for i := range perWorker {
				txnID := gen.Next()
				tup := intTuple(int32(w*perWorker + i)) //nolint:gosec
				if err := e.pool.InsertTuple(txnID, e.file.FileID(), tup); err != nil {
					return err
				}
				if err := e.pool.TransactionComplete(txnID, true); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	txnID := gen.Next()
	it := e.file.Iterator(txnID)
	require.NoError(t, it.Open())
	defer it.Close()

	seen := map[common.RecordID]struct{}{}
	values := map[tuple.Field]struct{}{}
	for _, tup := range scanAll(t, it) {
		rid, ok := tup.RecordID()
		require.True(t, ok)
		seen[rid] = struct{}{}
		values[tup.Field(0)] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Len(t, values, workers*perWorker)
}
