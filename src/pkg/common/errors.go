package common

import "github.com/go-faster/errors"

var (
	// ErrStorage is returned when reading or writing a page file fails.
	ErrStorage = errors.New("storage fault")
	// ErrNotFound covers unknown tables, unknown pages and free slots.
	ErrNotFound = errors.New("not found")
	// ErrIllegalState is returned when an iterator is used outside of its
	// open/close bracket.
	ErrIllegalState = errors.New("illegal state")
	// ErrTxnAborted is returned when granting a lock would complete a
	// deadlock cycle. The transaction must release all of its locks.
	ErrTxnAborted = errors.New("transaction aborted")
)
