package circulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/model"
)

func TestSweepFlipsExpiredIssuedEntries(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book := seedBook(t, database, "Dune", 2)

	// One loan already past due, one still running.
	expired, err := Create(ctx, database, CreateParams{
		UserID:     alice.ID,
		BookID:     book.ID,
		Status:     model.StatusIssued,
		BorrowDate: time.Now().AddDate(0, 0, -20),
		ReturnDate: time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	current, err := Create(ctx, database, issuedParams(bob.ID, book.ID))
	require.NoError(t, err)

	flipped, err := Sweep(ctx, database, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	got, err := GetByID(ctx, database, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, got.Status)

	got, err = GetByID(ctx, database, current.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusIssued, got.Status)

	// Issued -> overdue is a same-class transition: counters untouched.
	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 0, avail)
}

func TestSweepIsIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	_, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		Status:     model.StatusIssued,
		BorrowDate: time.Now().AddDate(0, 0, -20),
		ReturnDate: time.Now().AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	flipped, err := Sweep(ctx, database, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), flipped)

	// Nothing new between runs: the second sweep is a no-op.
	flipped, err = Sweep(ctx, database, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped)
}

func TestSweepLeavesRequestedEntriesAlone(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	// A reservation whose window has lapsed unused is intentionally not the
	// sweep's concern.
	entry, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		BorrowDate: time.Now().Add(time.Minute),
		ReturnDate: time.Now().Add(2 * time.Minute),
	})
	require.NoError(t, err)

	flipped, err := Sweep(ctx, database, time.Now().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped)

	got, err := GetByID(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, got.Status)
}

func TestSweepBoundaryIsStrict(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	due := time.Now().Add(time.Hour)
	_, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		Status:     model.StatusIssued,
		BorrowDate: time.Now().AddDate(0, 0, -1),
		ReturnDate: due,
	})
	require.NoError(t, err)

	// Exactly at the due date nothing is overdue yet.
	flipped, err := Sweep(ctx, database, due)
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped)

	flipped, err = Sweep(ctx, database, due.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)
}
