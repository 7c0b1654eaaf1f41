// Package circulation is the lifecycle manager for borrow entries. It owns
// every mutation of a loan and recomputes the book's inventory counters as a
// side effect of status transitions, all within a single transaction per
// operation.
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// MaxPageSize caps list queries.
const MaxPageSize = 100

// CreateParams describes a new borrow entry. Status defaults to requested;
// only managers issue directly (enforced by the HTTP layer).
type CreateParams struct {
	UserID     int64
	BookID     int64
	Status     model.BorrowStatus
	BorrowDate time.Time
	ReturnDate time.Time
}

// UpdateParams carries the changed fields of an entry; nil means keep the
// previous value.
type UpdateParams struct {
	UserID     *int64
	BookID     *int64
	BorrowDate *time.Time
	ReturnDate *time.Time
	Status     *model.BorrowStatus
}

// Create validates and persists a new borrow entry. If the initial status is
// issued, one available copy is consumed in the same transaction.
func Create(ctx context.Context, db *sql.DB, p CreateParams) (*model.BorrowEntry, error) {
	if p.Status == "" {
		p.Status = model.StatusRequested
	}

	// Shape checks first, collected so one call reports every violation.
	fields := map[string]string{}
	if !model.ValidStatus(p.Status) {
		fields["status"] = fmt.Sprintf("unknown status %q", p.Status)
	} else if p.Status != model.StatusRequested && p.Status != model.StatusIssued {
		fields["status"] = "new entries must start as requested or issued"
	}
	if !p.ReturnDate.After(p.BorrowDate) {
		fields["return_date"] = "must be strictly after borrow date"
	}
	if p.Status == model.StatusRequested && !p.BorrowDate.After(time.Now()) {
		fields["borrow_date"] = "a reservation cannot start in the past"
	}
	if len(fields) > 0 {
		return nil, &Error{Kind: KindValidation, Fields: fields}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := store.GetUser(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.DeletedAt != nil {
		return nil, notFound("user")
	}

	book, err := store.GetBook(ctx, tx, p.BookID)
	if err != nil {
		return nil, err
	}
	if book == nil || book.DeletedAt != nil {
		return nil, notFound("book")
	}

	exists, err := store.HasOpenOrPendingEntry(ctx, tx, p.UserID, p.BookID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(KindConflict, "book", "already requested or borrowed by this user")
	}

	if p.Status.IsOpen() {
		if err := applyLedger(ctx, tx, p.BookID, model.StatusRequested, p.Status); err != nil {
			return nil, err
		}
	}

	id, err := store.InsertBorrowEntry(ctx, tx, p.UserID, p.BookID, p.BorrowDate, p.ReturnDate, p.Status)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing borrow entry: %w", err)
	}

	return store.GetBorrowEntry(ctx, db, id)
}

// UpdateByID applies a partial update to a borrow entry, validating the status
// change against the transition table and keeping the inventory counters of
// the affected book (or books, when the entry moves) consistent.
func UpdateByID(ctx context.Context, db *sql.DB, id int64, p UpdateParams) error {
	fields := map[string]string{}
	if p.Status != nil && !model.ValidStatus(*p.Status) {
		fields["status"] = fmt.Sprintf("unknown status %q", *p.Status)
	}
	if len(fields) > 0 {
		return &Error{Kind: KindValidation, Fields: fields}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := store.GetBorrowEntry(ctx, tx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return notFound("entry")
	}

	// Resolve effective field values; omitted fields keep their old value.
	userID := entry.UserID
	if p.UserID != nil {
		userID = *p.UserID
		user, err := store.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil || user.DeletedAt != nil {
			return notFound("user")
		}
	}

	bookID := entry.BookID
	if p.BookID != nil {
		bookID = *p.BookID
		book, err := store.GetBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book == nil || book.DeletedAt != nil {
			return notFound("book")
		}
	}

	borrowDate := entry.BorrowDate
	if p.BorrowDate != nil {
		borrowDate = *p.BorrowDate
	}

	returnDate := entry.ReturnDate
	if p.ReturnDate != nil {
		returnDate = *p.ReturnDate
		if p.BorrowDate != nil {
			if !returnDate.After(borrowDate) {
				fields["return_date"] = "must be strictly after borrow date"
			}
		} else if !returnDate.After(time.Now()) {
			fields["return_date"] = "must be in the future"
		}
	} else if p.BorrowDate != nil && !returnDate.After(borrowDate) {
		fields["return_date"] = "must be strictly after borrow date"
	}

	status := entry.Status
	if p.Status != nil {
		status = *p.Status
	}
	if !model.CanTransition(entry.Status, status) {
		return newError(KindIllegalTransition, "status",
			fmt.Sprintf("cannot transition from %s to %s", entry.Status, status))
	}

	if len(fields) > 0 {
		return &Error{Kind: KindValidation, Fields: fields}
	}

	// Moving an open entry to another book shifts its consumed unit: release
	// on the old book, then consume on the new one before the status change
	// is accounted for.
	if bookID != entry.BookID && entry.Status.IsOpen() {
		if err := applyLedger(ctx, tx, entry.BookID, entry.Status, model.StatusReturned); err != nil {
			return err
		}
		if err := applyLedger(ctx, tx, bookID, model.StatusRequested, entry.Status); err != nil {
			return err
		}
	}

	if status != entry.Status {
		if err := applyLedger(ctx, tx, bookID, entry.Status, status); err != nil {
			return err
		}
	}

	if err := store.UpdateBorrowEntry(ctx, tx, id, userID, bookID, borrowDate, returnDate, status); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing borrow entry update: %w", err)
	}
	return nil
}

// DeleteByID removes a borrow entry. An open entry's consumed unit is
// credited back to the book first, so deleting an active loan never leaves
// the book permanently short. This is also how a user cancels a still
// requested entry (which never consumed inventory).
func DeleteByID(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := store.GetBorrowEntry(ctx, tx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return notFound("entry")
	}

	if entry.Status.IsOpen() {
		if err := applyLedger(ctx, tx, entry.BookID, entry.Status, model.StatusReturned); err != nil {
			return err
		}
	}

	if err := store.DeleteBorrowEntry(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing borrow entry deletion: %w", err)
	}
	return nil
}

// GetByID returns a borrow entry.
func GetByID(ctx context.Context, db *sql.DB, id int64) (*model.BorrowEntry, error) {
	entry, err := store.GetBorrowEntry(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, notFound("entry")
	}
	return entry, nil
}

// ListByStatus returns a page of entries, optionally filtered by status.
func ListByStatus(ctx context.Context, db *sql.DB, status model.BorrowStatus, page, size int) ([]model.BorrowEntry, error) {
	return list(ctx, db, store.BorrowFilter{Status: status}, status, page, size)
}

// ListByUserAndStatus returns a page of a user's entries.
func ListByUserAndStatus(ctx context.Context, db *sql.DB, userID int64, status model.BorrowStatus, page, size int) ([]model.BorrowEntry, error) {
	return list(ctx, db, store.BorrowFilter{UserID: userID, Status: status}, status, page, size)
}

// ListByBookAndStatus returns a page of a book's entries.
func ListByBookAndStatus(ctx context.Context, db *sql.DB, bookID int64, status model.BorrowStatus, page, size int) ([]model.BorrowEntry, error) {
	return list(ctx, db, store.BorrowFilter{BookID: bookID, Status: status}, status, page, size)
}

// Availability returns how many copies of a book can currently be lent out.
func Availability(ctx context.Context, db *sql.DB, bookID int64) (int, error) {
	book, err := store.GetBook(ctx, db, bookID)
	if err != nil {
		return 0, err
	}
	if book == nil || book.DeletedAt != nil {
		return 0, notFound("book")
	}
	return book.Available, nil
}

func list(ctx context.Context, db *sql.DB, f store.BorrowFilter, status model.BorrowStatus, page, size int) ([]model.BorrowEntry, error) {
	fields := map[string]string{}
	if status != "" && !model.ValidStatus(status) {
		fields["status"] = fmt.Sprintf("unknown status %q", status)
	}
	if page < 1 {
		fields["page"] = "must be at least 1"
	}
	if size < 1 || size > MaxPageSize {
		fields["size"] = fmt.Sprintf("must be between 1 and %d", MaxPageSize)
	}
	if len(fields) > 0 {
		return nil, &Error{Kind: KindValidation, Fields: fields}
	}

	f.Limit = size
	f.Offset = (page - 1) * size
	return store.ListBorrowEntries(ctx, db, f)
}

// applyLedger recomputes a book's counters for a status transition and writes
// them back guarded by the previously observed available value. A failed
// guard means another transaction got there first; the read is repeated once
// before giving up, per the optimistic-check discipline.
func applyLedger(ctx context.Context, tx store.Querier, bookID int64, old, new model.BorrowStatus) error {
	for attempt := 0; attempt < 2; attempt++ {
		book, err := store.GetBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return notFound("book")
		}

		quantity, available, err := ledger.Apply(book.Quantity, book.Available, old, new)
		if errors.Is(err, ledger.ErrExhausted) {
			return newError(KindInventoryExhausted, "book", "no copies available")
		}
		if errors.Is(err, ledger.ErrLostUnissued) {
			return newError(KindIllegalTransition, "status", "entry cannot be lost before it is issued")
		}
		if err != nil {
			return err
		}
		if quantity == book.Quantity && available == book.Available {
			return nil
		}

		ok, err := store.SetBookCounters(ctx, tx, bookID, quantity, available, book.Available)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return newError(KindInventoryExhausted, "book", "no copies available")
}
