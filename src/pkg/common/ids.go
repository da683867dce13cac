package common

import "fmt"

type FileID uint64
type PageID uint64

// TxnID is a monotonically increasing counter. It is unique between
// transactions of a single running database.
type TxnID uint64

const NilTxnID = TxnID(0)

type PageIdentity struct {
	FileID FileID
	PageID PageID
}

func (p PageIdentity) String() string {
	return fmt.Sprintf("page(%d:%d)", p.FileID, p.PageID)
}

// RecordID identifies the storage location of exactly one tuple.
type RecordID struct {
	FileID  FileID
	PageID  PageID
	SlotNum uint16
}

func NewRecordID(pageIdent PageIdentity, slotNum uint16) RecordID {
	return RecordID{
		FileID:  pageIdent.FileID,
		PageID:  pageIdent.PageID,
		SlotNum: slotNum,
	}
}

func (r RecordID) PageIdentity() PageIdentity {
	return PageIdentity{
		FileID: r.FileID,
		PageID: r.PageID,
	}
}

func (r RecordID) String() string {
	return fmt.Sprintf("record(%d:%d:%d)", r.FileID, r.PageID, r.SlotNum)
}
