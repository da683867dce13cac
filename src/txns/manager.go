package txns

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
)

type pageLocks struct {
	holders map[common.TxnID]PageLockMode

	// notifier is closed (and replaced) every time a holder leaves the page.
	// Blocked requests park on it and re-evaluate once woken.
	notifier chan struct{}
}

func newPageLocks() *pageLocks {
	return &pageLocks{
		holders:  make(map[common.TxnID]PageLockMode),
		notifier: make(chan struct{}),
	}
}

func (p *pageLocks) wakeWaiters() {
	close(p.notifier)
	p.notifier = make(chan struct{})
}

// LockManager implements strict two-phase locking on pages. A page has either
// any number of SHARED holders or exactly one EXCLUSIVE holder. Requests that
// cannot be granted block until a holder releases the page. Before blocking,
// the manager looks for a cycle in the wait-for graph and aborts the requester
// if it would close one.
//
// There is exactly one LockManager per running database. There is no ordering
// between waiters of the same page, so starvation is possible.
type LockManager struct {
	mu sync.Mutex

	pages       map[common.PageIdentity]*pageLocks
	lockedPages map[common.TxnID]map[common.PageIdentity]struct{}
	waitsFor    map[common.TxnID]map[common.PageIdentity]struct{}

	log common.Logger
}

func NewLockManager(log common.Logger) *LockManager {
	return &LockManager{
		pages:       make(map[common.PageIdentity]*pageLocks),
		lockedPages: make(map[common.TxnID]map[common.PageIdentity]struct{}),
		waitsFor:    make(map[common.TxnID]map[common.PageIdentity]struct{}),
		log:         log,
	}
}

// Lock acquires pageIdent in the given mode on behalf of txnID. A SHARED
// holder that is the only holder of the page is upgraded in place.
//
// Lock blocks until the lock is granted. It returns an error wrapping
// common.ErrTxnAborted if waiting would deadlock; the caller is then expected
// to release every lock of the transaction.
func (m *LockManager) Lock(
	txnID common.TxnID,
	pageIdent common.PageIdentity,
	mode PageLockMode,
) error {
	m.mu.Lock()
	for {
		p, ok := m.pages[pageIdent]
		if !ok {
			p = newPageLocks()
			m.pages[pageIdent] = p
		}

		if m.tryGrant(p, txnID, pageIdent, mode) {
			m.stopWaiting(txnID, pageIdent)
			m.mu.Unlock()

			return nil
		}

		m.startWaiting(txnID, pageIdent)
		if m.closesCycle(txnID) {
			m.stopWaiting(txnID, pageIdent)
			m.mu.Unlock()

			m.log.Infow(
				"deadlock detected, aborting requester",
				"txnID", txnID,
				"page", pageIdent,
				"mode", mode,
			)

			return fmt.Errorf(
				"%w: txn %d requesting %s lock on %v",
				common.ErrTxnAborted,
				txnID,
				mode,
				pageIdent,
			)
		}

		notifier := p.notifier
		m.mu.Unlock()

		<-notifier

		m.mu.Lock()
	}
}

// tryGrant must be called with m.mu held.
func (m *LockManager) tryGrant(
	p *pageLocks,
	txnID common.TxnID,
	pageIdent common.PageIdentity,
	mode PageLockMode,
) bool {
	current, held := p.holders[txnID]
	if held && current.Covers(mode) {
		return true
	}

	for holder, holderMode := range p.holders {
		if holder == txnID {
			continue
		}

		if !mode.Compatible(holderMode) {
			return false
		}
	}

	assert.Assert(
		!held || current.Upgradable(mode),
		"unexpected lock transition %s -> %s",
		current,
		mode,
	)

	p.holders[txnID] = mode

	locked, ok := m.lockedPages[txnID]
	if !ok {
		locked = make(map[common.PageIdentity]struct{})
		m.lockedPages[txnID] = locked
	}
	locked[pageIdent] = struct{}{}

	assert.Assert(
		mode != PageLockExclusive || len(p.holders) == 1,
		"exclusive lock on %v shared with %d holders",
		pageIdent,
		len(p.holders)-1,
	)

	return true
}

func (m *LockManager) startWaiting(txnID common.TxnID, pageIdent common.PageIdentity) {
	pages, ok := m.waitsFor[txnID]
	if !ok {
		pages = make(map[common.PageIdentity]struct{})
		m.waitsFor[txnID] = pages
	}
	pages[pageIdent] = struct{}{}
}

func (m *LockManager) stopWaiting(txnID common.TxnID, pageIdent common.PageIdentity) {
	pages, ok := m.waitsFor[txnID]
	if !ok {
		return
	}

	delete(pages, pageIdent)
	if len(pages) == 0 {
		delete(m.waitsFor, txnID)
	}
}

// closesCycle runs a depth-first search over the wait-for graph starting at
// the requester: a waiting transaction points at every other holder of the
// pages it waits for. Reaching the requester again means a deadlock.
// Must be called with m.mu held.
func (m *LockManager) closesCycle(requester common.TxnID) bool {
	visited := map[common.TxnID]struct{}{requester: {}}

	var visit func(waiter common.TxnID) bool
	visit = func(waiter common.TxnID) bool {
		for pageIdent := range m.waitsFor[waiter] {
			p, ok := m.pages[pageIdent]
			if !ok {
				continue
			}

			for holder := range p.holders {
				if holder == waiter {
					continue
				}

				if holder == requester {
					return true
				}

				if _, seen := visited[holder]; seen {
					continue
				}
				visited[holder] = struct{}{}

				if visit(holder) {
					return true
				}
			}
		}

		return false
	}

	return visit(requester)
}

// Unlock releases the lock txnID holds on pageIdent, if any.
func (m *LockManager) Unlock(txnID common.TxnID, pageIdent common.PageIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopWaiting(txnID, pageIdent)
	m.release(txnID, pageIdent)

	if locked, ok := m.lockedPages[txnID]; ok {
		delete(locked, pageIdent)
		if len(locked) == 0 {
			delete(m.lockedPages, txnID)
		}
	}
}

// UnlockAll releases every lock of the transaction. Used on commit, abort and
// deadlock abort.
func (m *LockManager) UnlockAll(txnID common.TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.waitsFor, txnID)

	for pageIdent := range m.lockedPages[txnID] {
		m.release(txnID, pageIdent)
	}
	delete(m.lockedPages, txnID)
}

// release must be called with m.mu held.
func (m *LockManager) release(txnID common.TxnID, pageIdent common.PageIdentity) {
	p, ok := m.pages[pageIdent]
	if !ok {
		return
	}

	if _, held := p.holders[txnID]; !held {
		return
	}

	delete(p.holders, txnID)
	p.wakeWaiters()

	if len(p.holders) == 0 {
		delete(m.pages, pageIdent)
	}
}

func (m *LockManager) HoldsLock(txnID common.TxnID, pageIdent common.PageIdentity) bool {
	_, ok := m.LockMode(txnID, pageIdent)
	return ok
}

// LockMode reports the mode txnID holds pageIdent in.
func (m *LockManager) LockMode(
	txnID common.TxnID,
	pageIdent common.PageIdentity,
) (PageLockMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageIdent]
	if !ok {
		return PageLockMode{}, false
	}

	mode, ok := p.holders[txnID]
	return mode, ok
}

// LockedPages returns the pages the transaction currently holds locks on.
func (m *LockManager) LockedPages(txnID common.TxnID) []common.PageIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Collect(maps.Keys(m.lockedPages[txnID]))
}

// Holders returns a snapshot of the holders of a page.
func (m *LockManager) Holders(pageIdent common.PageIdentity) map[common.TxnID]PageLockMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[pageIdent]
	if !ok {
		return map[common.TxnID]PageLockMode{}
	}

	return maps.Clone(p.holders)
}
