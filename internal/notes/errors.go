package notes

import (
	"errors"
	"fmt"
)

// ErrStorage matches every *StorageFailure via errors.Is.
var ErrStorage = errors.New("storage failure")

// ErrStoreClosed is returned by commands issued after Store.Close.
var ErrStoreClosed = errors.New("note store closed")

// StorageFailure reports that the persistence engine could not complete a
// read or write. It is never retried.
type StorageFailure struct {
	Op  string
	Err error
}

// NewStorageFailure wraps err as a failure of op. A nil err yields nil.
func NewStorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var sf *StorageFailure
	if errors.As(err, &sf) {
		return err
	}
	return &StorageFailure{Op: op, Err: err}
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

func (e *StorageFailure) Is(target error) bool { return target == ErrStorage }
