package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// MockPage is an in-memory Page that only tracks dirtiness.
type MockPage struct {
	Ident   common.PageIdentity
	Data    []byte
	dirty   bool
	dirtier common.TxnID
}

var _ Page = &MockPage{}

func NewMockPage(pageIdent common.PageIdentity, data []byte) *MockPage {
	return &MockPage{Ident: pageIdent, Data: data}
}

func (p *MockPage) PageIdentity() common.PageIdentity { return p.Ident }
func (p *MockPage) GetData() []byte                   { return p.Data }
func (p *MockPage) IsDirty() bool                     { return p.dirty }
func (p *MockPage) Dirtier() common.TxnID             { return p.dirtier }

func (p *MockPage) MarkDirty(dirty bool, txnID common.TxnID) {
	p.dirty = dirty
	p.dirtier = txnID
	if !dirty {
		p.dirtier = common.NilTxnID
	}
}

type MockDBFile struct {
	mock.Mock
}

var _ DBFile = &MockDBFile{}

func (m *MockDBFile) FileID() common.FileID {
	args := m.Called()
	return args.Get(0).(common.FileID)
}

func (m *MockDBFile) ReadPage(pageID common.PageID) (Page, error) {
	args := m.Called(pageID)
	p, _ := args.Get(0).(Page)
	return p, args.Error(1)
}

func (m *MockDBFile) WritePage(page Page) error {
	args := m.Called(page)
	return args.Error(0)
}

func (m *MockDBFile) InsertTuple(txnID common.TxnID, t *tuple.Tuple) ([]Page, error) {
	args := m.Called(txnID, t)
	pages, _ := args.Get(0).([]Page)
	return pages, args.Error(1)
}

func (m *MockDBFile) DeleteTuple(txnID common.TxnID, t *tuple.Tuple) ([]Page, error) {
	args := m.Called(txnID, t)
	pages, _ := args.Get(0).([]Page)
	return pages, args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

var _ Catalog = &MockCatalog{}

func (m *MockCatalog) DBFile(fileID common.FileID) (DBFile, error) {
	args := m.Called(fileID)
	f, _ := args.Get(0).(DBFile)
	return f, args.Error(1)
}

type MockReplacer struct {
	mock.Mock
}

var _ Replacer = &MockReplacer{}

func (m *MockReplacer) RecordAccess(pageIdent common.PageIdentity) {
	m.Called(pageIdent)
}

func (m *MockReplacer) Remove(pageIdent common.PageIdentity) {
	m.Called(pageIdent)
}

func (m *MockReplacer) ChooseVictim(cached []common.PageIdentity) (common.PageIdentity, error) {
	args := m.Called(cached)
	return args.Get(0).(common.PageIdentity), args.Error(1)
}
