package bufferpool

import (
	"container/list"
	"errors"
	"sync"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
)

var ErrNoVictim = errors.New("no victim available")

// LRUReplacer evicts the least recently accessed page.
type LRUReplacer struct {
	mu    sync.Mutex
	lru   *list.List
	pages map[common.PageIdentity]*list.Element
}

var (
	_ Replacer = &LRUReplacer{}
)

func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		lru:   list.New(),
		pages: make(map[common.PageIdentity]*list.Element),
	}
}

func (l *LRUReplacer) RecordAccess(pageIdent common.PageIdentity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.pages[pageIdent]; ok {
		l.lru.MoveToFront(elem)
		return
	}

	l.pages[pageIdent] = l.lru.PushFront(pageIdent)
}

func (l *LRUReplacer) Remove(pageIdent common.PageIdentity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.pages[pageIdent]; ok {
		l.lru.Remove(elem)
		delete(l.pages, pageIdent)
	}
}

// ChooseVictim returns the least recently used page among cached. It does not
// forget the victim; the pool calls Remove once the page is gone.
func (l *LRUReplacer) ChooseVictim(cached []common.PageIdentity) (common.PageIdentity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(cached) == 0 {
		return common.PageIdentity{}, ErrNoVictim
	}

	candidates := make(map[common.PageIdentity]struct{}, len(cached))
	for _, pageIdent := range cached {
		if _, tracked := l.pages[pageIdent]; !tracked {
			// never accessed pages are the oldest ones
			return pageIdent, nil
		}
		candidates[pageIdent] = struct{}{}
	}

	for elem := l.lru.Back(); elem != nil; elem = elem.Prev() {
		pageIdent := elem.Value.(common.PageIdentity)
		if _, ok := candidates[pageIdent]; ok {
			return pageIdent, nil
		}
	}

	return common.PageIdentity{}, ErrNoVictim
}

func (l *LRUReplacer) GetSize() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return uint64(len(l.pages))
}
