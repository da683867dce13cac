package txns

import (
	"sync/atomic"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
)

type TaggedType[T any] struct{ v T } // this trick forbids casting one lock mode to another

type PageLockMode TaggedType[uint8]

var (
	PageLockShared    = PageLockMode{0}
	PageLockExclusive = PageLockMode{1}
)

func (m PageLockMode) Compatible(other PageLockMode) bool {
	return m == PageLockShared && other == PageLockShared
}

// Covers reports whether holding m already satisfies a request for want.
func (m PageLockMode) Covers(want PageLockMode) bool {
	switch m {
	case PageLockShared:
		return want == PageLockShared
	case PageLockExclusive:
		return true
	}

	assert.Assert(false, "unknown page lock mode %d", m.v)
	return false
}

func (m PageLockMode) Upgradable(to PageLockMode) bool {
	return m == PageLockShared && to == PageLockExclusive
}

func (m PageLockMode) String() string {
	switch m {
	case PageLockShared:
		return "SHARED"
	case PageLockExclusive:
		return "EXCLUSIVE"
	}
	return "UNKNOWN"
}

// TxnIDGenerator hands out monotonically increasing transaction ids.
// The zero value starts at 1, so common.NilTxnID is never issued.
type TxnIDGenerator struct {
	last atomic.Uint64
}

func (g *TxnIDGenerator) Next() common.TxnID {
	return common.TxnID(g.last.Add(1))
}
