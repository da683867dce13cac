package heap

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

var (
	ErrPageFull     = errors.New("page is full")
	ErrDescMismatch = errors.New("tuple desc does not match the table")
)

// Page is a fixed-size page of a heap file.
//
// Layout: an occupancy bitmap of ceil(slots/8) bytes (bit i%8 of byte i/8,
// least significant bit first, 1 means used) followed by slots fixed-width
// tuple slots. The rest of the page is zero padding.
type Page struct {
	latch sync.RWMutex

	ident    common.PageIdentity
	desc     *tuple.TupleDesc
	pageSize int

	bitmap []byte
	tuples []*tuple.Tuple

	dirtier common.TxnID
	dirty   bool
}

var _ bufferpool.Page = &Page{}

// SlotsPerPage is the number of tuples of the given width that fit into a
// page along with their occupancy bits.
func SlotsPerPage(pageSize int, tupleSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

func bitmapSize(slots int) int {
	return (slots + 7) / 8
}

// NewPage decodes a page read from disk. The page size is len(data).
func NewPage(ident common.PageIdentity, desc *tuple.TupleDesc, data []byte) (*Page, error) {
	p := newPage(ident, desc, len(data))
	copy(p.bitmap, data)

	offset := len(p.bitmap)
	size := desc.Size()
	for slot := range p.tuples {
		if p.isSlotUsed(slot) {
			t, err := tuple.Deserialize(desc, data[offset:offset+size])
			if err != nil {
				return nil, fmt.Errorf("%w: page %v slot %d: %w", common.ErrStorage, ident, slot, err)
			}
			t.SetRecordID(common.NewRecordID(ident, uint16(slot))) //nolint:gosec
			p.tuples[slot] = t
		}
		offset += size
	}

	return p, nil
}

// NewEmptyPage returns a page with every slot free.
func NewEmptyPage(ident common.PageIdentity, desc *tuple.TupleDesc, pageSize int) *Page {
	return newPage(ident, desc, pageSize)
}

func newPage(ident common.PageIdentity, desc *tuple.TupleDesc, pageSize int) *Page {
	slots := SlotsPerPage(pageSize, desc.Size())
	assert.Assert(slots > 0, "a %d byte page can't hold a %d byte tuple", pageSize, desc.Size())
	assert.Assert(slots <= 1<<16, "too many slots per page: %d", slots)

	return &Page{
		ident:    ident,
		desc:     desc,
		pageSize: pageSize,
		bitmap:   make([]byte, bitmapSize(slots)),
		tuples:   make([]*tuple.Tuple, slots),
	}
}

func (p *Page) PageIdentity() common.PageIdentity {
	return p.ident
}

// GetData serializes the page into a fresh buffer of the page size.
func (p *Page) GetData() []byte {
	p.latch.RLock()
	defer p.latch.RUnlock()

	data := make([]byte, p.pageSize)
	copy(data, p.bitmap)

	offset := len(p.bitmap)
	size := p.desc.Size()
	for _, t := range p.tuples {
		if t != nil {
			t.Serialize(data[offset : offset+size])
		}
		offset += size
	}

	return data
}

func (p *Page) NumSlots() int {
	return len(p.tuples)
}

func (p *Page) NumEmptySlots() int {
	p.latch.RLock()
	defer p.latch.RUnlock()

	empty := 0
	for slot := range p.tuples {
		if !p.isSlotUsed(slot) {
			empty++
		}
	}
	return empty
}

func (p *Page) IsSlotUsed(slot int) bool {
	p.latch.RLock()
	defer p.latch.RUnlock()

	return p.isSlotUsed(slot)
}

func (p *Page) isSlotUsed(slot int) bool {
	assert.Assert(slot >= 0 && slot < len(p.tuples), "slot %d is out of range", slot)
	return p.bitmap[slot/8]&(1<<(slot%8)) != 0
}

func (p *Page) markSlotUsed(slot int, used bool) {
	if used {
		p.bitmap[slot/8] |= 1 << (slot % 8)
		return
	}
	p.bitmap[slot/8] &^= 1 << (slot % 8)
}

// InsertTuple stores a copy of t in the first free slot and assigns the
// slot's record id to t.
func (p *Page) InsertTuple(t *tuple.Tuple) error {
	if !t.Desc().Equals(p.desc) {
		return errors.Wrapf(ErrDescMismatch, "insert into %v", p.ident)
	}

	p.latch.Lock()
	defer p.latch.Unlock()

	for slot := range p.tuples {
		if p.isSlotUsed(slot) {
			continue
		}

		rid := common.NewRecordID(p.ident, uint16(slot)) //nolint:gosec

		stored := tuple.New(p.desc, t.Fields()...)
		stored.SetRecordID(rid)

		p.markSlotUsed(slot, true)
		p.tuples[slot] = stored
		t.SetRecordID(rid)
		return nil
	}

	return errors.Wrapf(ErrPageFull, "insert into %v", p.ident)
}

// DeleteTuple frees the slot t was read from.
func (p *Page) DeleteTuple(t *tuple.Tuple) error {
	rid, ok := t.RecordID()
	if !ok {
		return fmt.Errorf("%w: tuple has no record id", common.ErrNotFound)
	}
	if rid.PageIdentity() != p.ident {
		return fmt.Errorf("%w: tuple %v is not on page %v", common.ErrNotFound, rid, p.ident)
	}

	p.latch.Lock()
	defer p.latch.Unlock()

	slot := int(rid.SlotNum)
	if slot >= len(p.tuples) || !p.isSlotUsed(slot) {
		return fmt.Errorf("%w: slot %v is free", common.ErrNotFound, rid)
	}

	p.markSlotUsed(slot, false)
	p.tuples[slot] = nil

	return nil
}

// Tuples returns copies of the stored tuples in ascending slot order.
func (p *Page) Tuples() []*tuple.Tuple {
	p.latch.RLock()
	defer p.latch.RUnlock()

	res := make([]*tuple.Tuple, 0, len(p.tuples))
	for _, t := range p.tuples {
		if t != nil {
			res = append(res, t.Clone())
		}
	}
	return res
}

func (p *Page) IsDirty() bool {
	p.latch.RLock()
	defer p.latch.RUnlock()

	return p.dirty
}

func (p *Page) Dirtier() common.TxnID {
	p.latch.RLock()
	defer p.latch.RUnlock()

	return p.dirtier
}

func (p *Page) MarkDirty(dirty bool, txnID common.TxnID) {
	p.latch.Lock()
	defer p.latch.Unlock()

	p.dirty = dirty
	if !dirty {
		txnID = common.NilTxnID
	}
	p.dirtier = txnID
}
