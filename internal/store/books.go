package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
)

// CreateBook creates a new book with the given number of copies.
// All copies start out available.
func CreateBook(ctx context.Context, db *sql.DB, title, author, category string, quantity int) (*model.Book, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO books (title, author, category, quantity, available) VALUES (?, ?, ?, ?, ?)`,
		title, author, category, quantity, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("creating book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting book id: %w", err)
	}

	return GetBook(ctx, db, id)
}

// GetBook returns a book by ID.
func GetBook(ctx context.Context, db Querier, id int64) (*model.Book, error) {
	book := &model.Book{}
	var author, category, coverMime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, title, author, category, quantity, available, cover_mime,
		        created_at, updated_at, deleted_at
		 FROM books WHERE id = ?`, id,
	).Scan(&book.ID, &book.Title, &author, &category, &book.Quantity, &book.Available,
		&coverMime, &book.CreatedAt, &book.UpdatedAt, &book.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting book: %w", err)
	}
	book.Author = author.String
	book.Category = category.String
	book.CoverMime = coverMime.String
	return book, nil
}

// ListBooks returns all non-deleted books, optionally filtered by category.
func ListBooks(ctx context.Context, db *sql.DB, category string) ([]model.Book, error) {
	var rows *sql.Rows
	var err error

	if category != "" {
		rows, err = db.QueryContext(ctx,
			`SELECT id, title, author, category, quantity, available, cover_mime,
			        created_at, updated_at, deleted_at
			 FROM books WHERE deleted_at IS NULL AND category = ? ORDER BY title`, category,
		)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT id, title, author, category, quantity, available, cover_mime,
			        created_at, updated_at, deleted_at
			 FROM books WHERE deleted_at IS NULL ORDER BY title`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var book model.Book
		var author, category, coverMime sql.NullString
		if err := rows.Scan(&book.ID, &book.Title, &author, &category, &book.Quantity,
			&book.Available, &coverMime, &book.CreatedAt, &book.UpdatedAt, &book.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		book.Author = author.String
		book.Category = category.String
		book.CoverMime = coverMime.String
		books = append(books, book)
	}
	return books, rows.Err()
}

// UpdateBook updates a book's catalog metadata. The copy counters are owned
// by the circulation package and are not touched here.
func UpdateBook(ctx context.Context, db *sql.DB, id int64, title, author, category string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, category = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		title, author, category, id,
	)
	if err != nil {
		return fmt.Errorf("updating book: %w", err)
	}
	return nil
}

// AddBookCopies adds newly acquired copies to a book, raising quantity and
// available together. Delta may be negative to retire shelved copies, but
// never below what is currently available.
func AddBookCopies(ctx context.Context, db *sql.DB, id int64, delta int) error {
	if delta == 0 {
		return fmt.Errorf("delta must be non-zero")
	}

	result, err := db.ExecContext(ctx,
		`UPDATE books SET quantity = quantity + ?, available = available + ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL AND available + ? >= 0`,
		delta, delta, id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjusting book copies: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("book not found or not enough shelved copies to remove")
	}
	return nil
}

// SetBookCounters writes new quantity/available counters, guarded by the
// previously observed available value. Returns false when another transaction
// changed the row in between, so the caller can re-read and retry.
func SetBookCounters(ctx context.Context, db Querier, id int64, quantity, available, prevAvailable int) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE books SET quantity = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND available = ?`,
		quantity, available, id, prevAvailable,
	)
	if err != nil {
		return false, fmt.Errorf("setting book counters: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking counter update: %w", err)
	}
	return affected > 0, nil
}

// DeleteBook soft-deletes a book.
func DeleteBook(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE books SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return nil
}

// SetBookCover sets a book's cover image data.
func SetBookCover(ctx context.Context, db *sql.DB, id int64, cover []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE books SET cover = ?, cover_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		cover, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting book cover: %w", err)
	}
	return nil
}

// GetBookCover returns a book's cover image data and MIME type.
func GetBookCover(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var cover []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM books WHERE id = ?`, id,
	).Scan(&cover, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting book cover: %w", err)
	}
	return cover, mime.String, nil
}
