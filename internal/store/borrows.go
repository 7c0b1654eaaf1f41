package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/knjiznica/internal/model"
)

// InsertBorrowEntry inserts a new borrow entry and returns its ID.
func InsertBorrowEntry(ctx context.Context, db Querier, userID, bookID int64, borrowDate, returnDate time.Time, status model.BorrowStatus) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO borrow_entries (user_id, book_id, borrow_date, return_date, status)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, bookID, borrowDate, returnDate, status,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting borrow entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting borrow entry id: %w", err)
	}
	return id, nil
}

// GetBorrowEntry returns a borrow entry by ID, with user and book names joined.
func GetBorrowEntry(ctx context.Context, db Querier, id int64) (*model.BorrowEntry, error) {
	e := &model.BorrowEntry{}
	err := db.QueryRowContext(ctx,
		`SELECT be.id, be.user_id, be.book_id, be.borrow_date, be.return_date, be.status,
		        be.created_at, be.updated_at, u.username, b.title
		 FROM borrow_entries be
		 JOIN users u ON u.id = be.user_id
		 JOIN books b ON b.id = be.book_id
		 WHERE be.id = ?`, id,
	).Scan(&e.ID, &e.UserID, &e.BookID, &e.BorrowDate, &e.ReturnDate, &e.Status,
		&e.CreatedAt, &e.UpdatedAt, &e.Username, &e.BookTitle)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting borrow entry: %w", err)
	}
	return e, nil
}

// UpdateBorrowEntry writes the full effective field set of a borrow entry.
func UpdateBorrowEntry(ctx context.Context, db Querier, id, userID, bookID int64, borrowDate, returnDate time.Time, status model.BorrowStatus) error {
	_, err := db.ExecContext(ctx,
		`UPDATE borrow_entries
		 SET user_id = ?, book_id = ?, borrow_date = ?, return_date = ?, status = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		userID, bookID, borrowDate, returnDate, status, id,
	)
	if err != nil {
		return fmt.Errorf("updating borrow entry: %w", err)
	}
	return nil
}

// DeleteBorrowEntry removes a borrow entry row.
func DeleteBorrowEntry(ctx context.Context, db Querier, id int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM borrow_entries WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting borrow entry: %w", err)
	}
	return nil
}

// HasOpenOrPendingEntry reports whether the user already has a requested,
// issued, or overdue entry for the book.
func HasOpenOrPendingEntry(ctx context.Context, db Querier, userID, bookID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_entries
		 WHERE user_id = ? AND book_id = ? AND status IN ('requested', 'issued', 'overdue')`,
		userID, bookID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking existing entries: %w", err)
	}
	return count > 0, nil
}

// CountOpenEntries returns the number of issued or overdue entries for a book.
func CountOpenEntries(ctx context.Context, db Querier, bookID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_entries
		 WHERE book_id = ? AND status IN ('issued', 'overdue')`, bookID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting open entries: %w", err)
	}
	return count, nil
}

// BorrowFilter narrows ListBorrowEntries. Zero values mean "no filter";
// Limit and Offset are applied as given.
type BorrowFilter struct {
	UserID int64
	BookID int64
	Status model.BorrowStatus
	Limit  int
	Offset int
}

// ListBorrowEntries returns borrow entries matching the filter, ordered by
// entry ID ascending for stable pagination.
func ListBorrowEntries(ctx context.Context, db *sql.DB, f BorrowFilter) ([]model.BorrowEntry, error) {
	query := `SELECT be.id, be.user_id, be.book_id, be.borrow_date, be.return_date, be.status,
	                 be.created_at, be.updated_at, u.username, b.title
	          FROM borrow_entries be
	          JOIN users u ON u.id = be.user_id
	          JOIN books b ON b.id = be.book_id
	          WHERE 1=1`
	var args []any

	if f.UserID > 0 {
		query += ` AND be.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.BookID > 0 {
		query += ` AND be.book_id = ?`
		args = append(args, f.BookID)
	}
	if f.Status != "" {
		query += ` AND be.status = ?`
		args = append(args, f.Status)
	}

	query += ` ORDER BY be.id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing borrow entries: %w", err)
	}
	defer rows.Close()

	var entries []model.BorrowEntry
	for rows.Next() {
		var e model.BorrowEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.BookID, &e.BorrowDate, &e.ReturnDate, &e.Status,
			&e.CreatedAt, &e.UpdatedAt, &e.Username, &e.BookTitle); err != nil {
			return nil, fmt.Errorf("scanning borrow entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkOverdueEntries flips every issued entry whose return date is strictly
// before now to overdue, in one conditional update. Running it again with no
// new data changes nothing, so a crashed run is safe to repeat.
func MarkOverdueEntries(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE borrow_entries
		 SET status = 'overdue', updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'issued' AND return_date < ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("marking overdue entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting overdue updates: %w", err)
	}
	return affected, nil
}
