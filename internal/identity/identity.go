// Package identity issues process-unique identifiers for companies,
// accounts, and sessions. IDs are monotonically increasing and never
// reused within a process lifetime.
package identity

import (
	"strconv"
	"sync/atomic"
)

// ID is an opaque process-unique identifier. The zero value is never
// issued and means "unset".
type ID uint64

// None is the unset sentinel. Issuer.Next never returns it.
const None ID = 0

// String renders the ID for logging and text snapshots.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Issuer hands out unique IDs. Safe for concurrent use; issuance is a
// single lock-free increment.
type Issuer struct {
	last atomic.Uint64
}

// NewIssuer creates an issuer whose first issued ID is 1.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Next returns a fresh ID, never None and never a previously issued value.
func (i *Issuer) Next() ID {
	return ID(i.last.Add(1))
}
