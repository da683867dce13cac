package bufferpool

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
	"github.com/Blackdeer1524/heapdb/src/txns"
)

const DefaultPoolSize = 50

var (
	// ReadOnly and ReadWrite are the permissions a page can be requested
	// with. They map onto page lock modes one to one.
	ReadOnly  = txns.PageLockShared
	ReadWrite = txns.PageLockExclusive
)

type Page interface {
	PageIdentity() common.PageIdentity
	GetData() []byte

	IsDirty() bool
	// Dirtier returns the transaction that last dirtied the page, or
	// common.NilTxnID for a clean page.
	Dirtier() common.TxnID
	MarkDirty(dirty bool, txnID common.TxnID)
}

// DBFile is the on-disk representation of one table.
type DBFile interface {
	FileID() common.FileID
	ReadPage(pageID common.PageID) (Page, error)
	WritePage(page Page) error

	// InsertTuple and DeleteTuple return the pages they modified. They
	// fetch pages through the buffer pool, so they must not be called while
	// holding the pool's latch.
	InsertTuple(txnID common.TxnID, t *tuple.Tuple) ([]Page, error)
	DeleteTuple(txnID common.TxnID, t *tuple.Tuple) ([]Page, error)
}

// Catalog resolves table ids to their files.
type Catalog interface {
	DBFile(fileID common.FileID) (DBFile, error)
}

// Replacer selects the page to evict when the pool is full. It is only ever
// called with the pool's latch held.
type Replacer interface {
	RecordAccess(pageIdent common.PageIdentity)
	Remove(pageIdent common.PageIdentity)
	ChooseVictim(cached []common.PageIdentity) (common.PageIdentity, error)
}

// Manager is a bounded page cache and the only place tuples are mutated
// through. Every page access first goes through the lock manager.
//
// Dirty pages may be evicted (and therefore written) before their transaction
// commits. Aborting a transaction does not roll its pages back.
type Manager struct {
	capacity int

	mu    sync.Mutex
	pages map[common.PageIdentity]Page

	replacer Replacer
	catalog  Catalog
	locks    *txns.LockManager

	log common.Logger
}

func New(
	capacity int,
	replacer Replacer,
	catalog Catalog,
	locks *txns.LockManager,
	log common.Logger,
) (*Manager, error) {
	assert.Assert(capacity > 0, "pool size must be greater than zero")

	return &Manager{
		capacity: capacity,
		pages:    make(map[common.PageIdentity]Page, capacity),
		replacer: replacer,
		catalog:  catalog,
		locks:    locks,
		log:      log,
	}, nil
}

// GetPage returns the page under a lock of the requested mode, blocking until
// the lock is granted. If waiting would deadlock, every lock of the
// transaction is released and an error wrapping common.ErrTxnAborted is
// returned.
func (m *Manager) GetPage(
	txnID common.TxnID,
	pageIdent common.PageIdentity,
	mode txns.PageLockMode,
) (Page, error) {
	if err := m.locks.Lock(txnID, pageIdent, mode); err != nil {
		if errors.Is(err, common.ErrTxnAborted) {
			m.locks.UnlockAll(txnID)
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pages[pageIdent]; ok {
		m.replacer.RecordAccess(pageIdent)
		return p, nil
	}

	file, err := m.catalog.DBFile(pageIdent.FileID)
	if err != nil {
		return nil, err
	}

	p, err := file.ReadPage(pageIdent.PageID)
	if err != nil {
		return nil, err
	}

	if err := m.cachePage(p); err != nil {
		return nil, err
	}

	return p, nil
}

// cachePage puts the page into the cache, replacing a stale copy of the same
// page or evicting a victim when the pool is full. Must be called with m.mu
// held.
func (m *Manager) cachePage(p Page) error {
	pageIdent := p.PageIdentity()

	if _, ok := m.pages[pageIdent]; !ok && len(m.pages) >= m.capacity {
		if err := m.evictPage(); err != nil {
			return err
		}
	}

	m.pages[pageIdent] = p
	m.replacer.RecordAccess(pageIdent)

	assert.Assert(
		len(m.pages) <= m.capacity,
		"buffer pool overflow: %d pages cached, capacity %d",
		len(m.pages),
		m.capacity,
	)

	return nil
}

// evictPage must be called with m.mu held. A dirty victim is written to disk
// before it is dropped; if the write fails the victim stays cached.
func (m *Manager) evictPage() error {
	candidates := slices.Collect(maps.Keys(m.pages))

	victim, err := m.replacer.ChooseVictim(candidates)
	if err != nil {
		return errors.Wrap(err, "choose victim")
	}

	p, ok := m.pages[victim]
	assert.Assert(ok, "replacer chose a page that is not cached: %v", victim)

	if p.IsDirty() {
		if err := m.flush(p); err != nil {
			return errors.Wrapf(err, "evict %v", victim)
		}
	}

	delete(m.pages, victim)
	m.replacer.Remove(victim)

	m.log.Debugw("evicted page", "page", victim)

	return nil
}

// flush must be called with m.mu held.
func (m *Manager) flush(p Page) error {
	pageIdent := p.PageIdentity()

	file, err := m.catalog.DBFile(pageIdent.FileID)
	if err != nil {
		return err
	}

	if err := file.WritePage(p); err != nil {
		return err
	}

	p.MarkDirty(false, common.NilTxnID)

	return nil
}

// InsertTuple adds t to the table on behalf of the transaction. The pages the
// table modified are marked dirty and replace any cached copies.
func (m *Manager) InsertTuple(txnID common.TxnID, fileID common.FileID, t *tuple.Tuple) error {
	file, err := m.catalog.DBFile(fileID)
	if err != nil {
		return err
	}

	dirtied, err := file.InsertTuple(txnID, t)
	if err != nil {
		return err
	}

	return m.recacheDirtied(txnID, dirtied)
}

// DeleteTuple removes t from the table it was read from.
func (m *Manager) DeleteTuple(txnID common.TxnID, t *tuple.Tuple) error {
	rid, ok := t.RecordID()
	if !ok {
		return fmt.Errorf("%w: tuple has no record id", common.ErrNotFound)
	}

	file, err := m.catalog.DBFile(rid.FileID)
	if err != nil {
		return err
	}

	dirtied, err := file.DeleteTuple(txnID, t)
	if err != nil {
		return err
	}

	return m.recacheDirtied(txnID, dirtied)
}

func (m *Manager) recacheDirtied(txnID common.TxnID, dirtied []Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range dirtied {
		p.MarkDirty(true, txnID)
		if err := m.cachePage(p); err != nil {
			return err
		}
	}

	return nil
}

// FlushPage writes the page to disk if it is cached and dirty.
func (m *Manager) FlushPage(pageIdent common.PageIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageIdent]
	if !ok || !p.IsDirty() {
		return nil
	}

	return m.flush(p)
}

// FlushAllPages writes every dirty cached page to disk.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pageIdent, p := range m.pages {
		if !p.IsDirty() {
			continue
		}

		if err := m.flush(p); err != nil {
			return errors.Wrapf(err, "flush %v", pageIdent)
		}
	}

	return nil
}

// FlushPages writes every cached page dirtied by the transaction to disk.
func (m *Manager) FlushPages(txnID common.TxnID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pageIdent, p := range m.pages {
		if !p.IsDirty() || p.Dirtier() != txnID {
			continue
		}

		if err := m.flush(p); err != nil {
			return errors.Wrapf(err, "flush %v", pageIdent)
		}
	}

	return nil
}

// DiscardPage drops the page from the cache without writing it.
func (m *Manager) DiscardPage(pageIdent common.PageIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[pageIdent]; !ok {
		return
	}

	delete(m.pages, pageIdent)
	m.replacer.Remove(pageIdent)
}

func (m *Manager) HoldsLock(txnID common.TxnID, pageIdent common.PageIdentity) bool {
	return m.locks.HoldsLock(txnID, pageIdent)
}

// ReleasePage drops a single page lock before the transaction completes.
// This breaks two-phase locking and is only safe for pages the transaction
// neither read nor modified in a way others depend on.
func (m *Manager) ReleasePage(txnID common.TxnID, pageIdent common.PageIdentity) {
	m.locks.Unlock(txnID, pageIdent)
}

// TransactionComplete ends the transaction. On commit the pages it dirtied are
// forced to disk. On abort nothing is rolled back: pages it dirtied stay in
// the cache (and may already have been written by eviction).
func (m *Manager) TransactionComplete(txnID common.TxnID, commit bool) error {
	defer m.locks.UnlockAll(txnID)

	if !commit {
		return nil
	}

	return m.FlushPages(txnID)
}

func (m *Manager) IsCached(pageIdent common.PageIdentity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pages[pageIdent]
	return ok
}

func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pages)
}

func (m *Manager) Capacity() int {
	return m.capacity
}
