// Package apperr classifies failures crossing the record store and blob
// store boundaries. The set of kinds is closed: adapters decide the kind,
// callers only switch on it.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnclassified Kind = iota
	// KindNotFound: a record or blob required by the operation is absent.
	KindNotFound
	// KindTransientConflict: the record store rejected a write because of a
	// concurrent transaction. Only the repository layer produces it.
	KindTransientConflict
	// KindBlobStore: the object store failed for any reason other than a
	// missing object.
	KindBlobStore
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransientConflict:
		return "transient_conflict"
	case KindBlobStore:
		return "blob_store"
	default:
		return "unclassified"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
