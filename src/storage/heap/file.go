package heap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
	"github.com/Blackdeer1524/heapdb/src/txns"
)

const DefaultPageSize = 4096

// PagePool is the part of the buffer pool a heap file fetches its pages
// through.
type PagePool interface {
	GetPage(
		txnID common.TxnID,
		pageIdent common.PageIdentity,
		mode txns.PageLockMode,
	) (bufferpool.Page, error)
}

// File stores the tuples of one table as an array of fixed-size pages.
type File struct {
	fs       afero.Fs
	path     string
	id       common.FileID
	desc     *tuple.TupleDesc
	pageSize int

	// guards growing the file so concurrent inserters never claim the
	// same new page number
	appendMu sync.Mutex

	pool PagePool
	log  common.Logger
}

var _ bufferpool.DBFile = &File{}

// NewFile opens the heap file at path, creating it if it doesn't exist. The
// file id is derived from the absolute path, so it is stable across runs.
func NewFile(
	fs afero.Fs,
	path string,
	desc *tuple.TupleDesc,
	pageSize int,
	pool PagePool,
	log common.Logger,
) (*File, error) {
	if SlotsPerPage(pageSize, desc.Size()) < 1 {
		return nil, errors.Errorf(
			"page size %d can't fit a single %d byte tuple",
			pageSize,
			desc.Size(),
		)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}

	f, err := fs.OpenFile(absPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, absPath, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close %s: %w", common.ErrStorage, absPath, err)
	}

	return &File{
		fs:       fs,
		path:     absPath,
		id:       common.FileID(xxhash.Sum64String(absPath)),
		desc:     desc,
		pageSize: pageSize,
		pool:     pool,
		log:      log,
	}, nil
}

func (f *File) FileID() common.FileID {
	return f.id
}

func (f *File) Path() string {
	return f.path
}

func (f *File) TupleDesc() *tuple.TupleDesc {
	return f.desc
}

func (f *File) PageSize() int {
	return f.pageSize
}

func (f *File) pageIdent(pageID common.PageID) common.PageIdentity {
	return common.PageIdentity{FileID: f.id, PageID: pageID}
}

// NumPages is the file length divided by the page size. A length that is not
// a multiple of the page size means a torn write or a file created with
// another page size, and is reported as a storage fault.
func (f *File) NumPages() (int, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %w", common.ErrStorage, f.path, err)
	}

	if info.Size()%int64(f.pageSize) != 0 {
		return 0, fmt.Errorf(
			"%w: file %s has a partial page: size %d, page size %d",
			common.ErrStorage,
			f.path,
			info.Size(),
			f.pageSize,
		)
	}

	return int(info.Size() / int64(f.pageSize)), nil
}

func (f *File) ReadPage(pageID common.PageID) (bufferpool.Page, error) {
	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}

	ident := f.pageIdent(pageID)
	if pageID >= common.PageID(numPages) { //nolint:gosec
		return nil, fmt.Errorf("%w: page %v (file has %d pages)", common.ErrNotFound, ident, numPages)
	}

	file, err := f.fs.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, f.path, err)
	}
	defer file.Close()

	//nolint:gosec
	offset := int64(pageID) * int64(f.pageSize)
	data := make([]byte, f.pageSize)

	n, err := file.ReadAt(data, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == f.pageSize) {
		return nil, fmt.Errorf("%w: read page %v: %w", common.ErrStorage, ident, err)
	}
	if n < f.pageSize {
		return nil, fmt.Errorf("%w: short read of page %v: %d bytes", common.ErrStorage, ident, n)
	}

	return NewPage(ident, f.desc, data)
}

// WritePage overwrites the page in place.
func (f *File) WritePage(page bufferpool.Page) error {
	ident := page.PageIdentity()
	assert.Assert(ident.FileID == f.id, "page %v doesn't belong to file %d", ident, f.id)

	return f.writeAt(ident, page.GetData())
}

func (f *File) writeAt(ident common.PageIdentity, data []byte) error {
	assert.Assert(
		len(data) == f.pageSize,
		"page %v has %d bytes, expected %d",
		ident,
		len(data),
		f.pageSize,
	)

	file, err := f.fs.OpenFile(f.path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", common.ErrStorage, f.path, err)
	}
	defer file.Close()

	//nolint:gosec
	offset := int64(ident.PageID) * int64(f.pageSize)
	if _, err := file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: write page %v: %w", common.ErrStorage, ident, err)
	}

	return nil
}

func (f *File) fetchPage(
	txnID common.TxnID,
	pageID common.PageID,
	mode txns.PageLockMode,
) (*Page, error) {
	p, err := f.pool.GetPage(txnID, f.pageIdent(pageID), mode)
	if err != nil {
		return nil, err
	}

	return assert.Cast[*Page](p), nil
}

// InsertTuple places t into the first page that has a free slot, appending a
// new page when every existing one is full. It returns the page it modified.
func (f *File) InsertTuple(txnID common.TxnID, t *tuple.Tuple) ([]bufferpool.Page, error) {
	if !t.Desc().Equals(f.desc) {
		return nil, errors.Wrapf(ErrDescMismatch, "insert into %s", f.path)
	}

	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}

	for pageID := common.PageID(0); ; pageID++ {
		if pageID >= common.PageID(numPages) { //nolint:gosec
			if pageID, err = f.appendEmptyPage(); err != nil {
				return nil, err
			}
			numPages = int(pageID) + 1
		}

		p, err := f.fetchPage(txnID, pageID, bufferpool.ReadWrite)
		if err != nil {
			return nil, err
		}

		if p.NumEmptySlots() == 0 {
			continue
		}

		if err := p.InsertTuple(t); err != nil {
			return nil, err
		}

		return []bufferpool.Page{p}, nil
	}
}

// appendEmptyPage extends the file by one zeroed page and returns its number.
func (f *File) appendEmptyPage() (common.PageID, error) {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()

	numPages, err := f.NumPages()
	if err != nil {
		return 0, err
	}

	pageID := common.PageID(numPages) //nolint:gosec
	if err := f.writeAt(f.pageIdent(pageID), make([]byte, f.pageSize)); err != nil {
		return 0, err
	}

	f.log.Debugw("appended page", "file", f.path, "page", pageID)

	return pageID, nil
}

// DeleteTuple frees the slot t was read from and returns the page it
// modified.
func (f *File) DeleteTuple(txnID common.TxnID, t *tuple.Tuple) ([]bufferpool.Page, error) {
	rid, ok := t.RecordID()
	if !ok {
		return nil, fmt.Errorf("%w: tuple has no record id", common.ErrNotFound)
	}
	if rid.FileID != f.id {
		return nil, fmt.Errorf("%w: tuple %v is not in %s", common.ErrNotFound, rid, f.path)
	}

	p, err := f.fetchPage(txnID, rid.PageID, bufferpool.ReadWrite)
	if err != nil {
		return nil, err
	}

	if err := p.DeleteTuple(t); err != nil {
		return nil, err
	}

	return []bufferpool.Page{p}, nil
}

// Iterator returns a scan over every tuple of the file on behalf of the
// transaction.
func (f *File) Iterator(txnID common.TxnID) *Iterator {
	return &Iterator{file: f, txnID: txnID}
}
