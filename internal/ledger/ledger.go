// Package ledger owns the arithmetic that keeps a book's quantity and
// available counters truthful relative to its open borrow entries. It is pure
// bookkeeping: callers are responsible for persisting the result in the same
// transaction as the borrow entry write.
package ledger

import (
	"errors"

	"github.com/erazemk/knjiznica/internal/model"
)

// ErrExhausted is returned when a consuming transition finds no available copy.
var ErrExhausted = errors.New("no copies available")

// ErrLostUnissued is returned when an entry is marked lost without the copy
// ever having left the shelf. Lost is only reachable from issued or overdue.
var ErrLostUnissued = errors.New("entry cannot be lost before it is issued")

// Apply computes the new quantity and available counters for a status change
// from old to new.
//
// A transition into the open class (issued/overdue) consumes one available
// unit; out of it releases one, capped at quantity. A transition within the
// same class is a no-op for the counters. Marking an entry lost removes the
// copy from the total: quantity drops by one and the consumed unit is not
// re-added, so available stays put.
func Apply(quantity, available int, old, new model.BorrowStatus) (int, int, error) {
	if new == model.StatusLost {
		if !old.IsOpen() {
			return quantity, available, ErrLostUnissued
		}
		quantity--
		if available > quantity {
			available = quantity
		}
		return quantity, available, nil
	}

	switch {
	case !old.IsOpen() && new.IsOpen():
		if available < 1 {
			return quantity, available, ErrExhausted
		}
		available--
	case old.IsOpen() && !new.IsOpen():
		if available < quantity {
			available++
		}
	}

	return quantity, available, nil
}
