package circulation

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

func seedUser(t *testing.T, database *sql.DB, username string) *model.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), database, username, "x", model.RoleUser)
	require.NoError(t, err)
	return user
}

func seedBook(t *testing.T, database *sql.DB, title string, quantity int) *model.Book {
	t.Helper()
	book, err := store.CreateBook(context.Background(), database, title, "Author", "fiction", quantity)
	require.NoError(t, err)
	return book
}

func bookCounters(t *testing.T, database *sql.DB, id int64) (int, int) {
	t.Helper()
	book, err := store.GetBook(context.Background(), database, id)
	require.NoError(t, err)
	require.NotNil(t, book)
	return book.Quantity, book.Available
}

func issuedParams(userID, bookID int64) CreateParams {
	return CreateParams{
		UserID:     userID,
		BookID:     bookID,
		Status:     model.StatusIssued,
		BorrowDate: time.Now().AddDate(0, 0, -1),
		ReturnDate: time.Now().AddDate(0, 0, 13),
	}
}

func TestCreateRequestedDoesNotConsume(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 2)

	entry, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		BorrowDate: time.Now().AddDate(0, 0, 1),
		ReturnDate: time.Now().AddDate(0, 0, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, entry.Status)

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 2, avail)
}

// The issue-then-return scenario: issuing consumes a unit, returning
// releases it.
func TestIssueThenReturnRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 2)

	entry, err := Create(ctx, database, issuedParams(user.ID, book.ID))
	require.NoError(t, err)
	assert.Equal(t, model.StatusIssued, entry.Status)

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 1, avail)

	returned := model.StatusReturned
	require.NoError(t, UpdateByID(ctx, database, entry.ID, UpdateParams{Status: &returned}))

	qty, avail = bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 2, avail)

	got, err := GetByID(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturned, got.Status)
}

func TestCreateReportsAllViolationsAtOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	// Reservation starting in the past with an inverted date range.
	_, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		BorrowDate: time.Now().AddDate(0, 0, -2),
		ReturnDate: time.Now().AddDate(0, 0, -5),
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	fields := FieldsOf(err)
	assert.Contains(t, fields, "borrow_date")
	assert.Contains(t, fields, "return_date")
}

func TestCreateRejectsTerminalInitialStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	p := issuedParams(user.ID, book.ID)
	p.Status = model.StatusReturned
	_, err := Create(ctx, database, p)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateUnknownUserAndBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	_, err := Create(ctx, database, issuedParams(999, book.ID))
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = Create(ctx, database, issuedParams(user.ID, 999))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateConflictOnExistingEntry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 3)

	_, err := Create(ctx, database, issuedParams(user.ID, book.ID))
	require.NoError(t, err)

	_, err = Create(ctx, database, issuedParams(user.ID, book.ID))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestCreateExhaustedInventory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book := seedBook(t, database, "Dune", 1)

	_, err := Create(ctx, database, issuedParams(alice.ID, book.ID))
	require.NoError(t, err)

	_, err = Create(ctx, database, issuedParams(bob.ID, book.ID))
	assert.Equal(t, KindInventoryExhausted, KindOf(err))

	_, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 0, avail)
}

// Two concurrent issues of the last copy must resolve to exactly one success.
func TestConcurrentIssueOfLastCopy(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book := seedBook(t, database, "Dune", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []int64{alice.ID, bob.ID} {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			_, errs[i] = Create(ctx, database, issuedParams(uid, book.ID))
		}(i, uid)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, KindInventoryExhausted, KindOf(err))
		}
	}
	assert.Equal(t, 1, successes)

	_, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 0, avail)
}

func TestUpdateIllegalTransitionsLeaveStateUntouched(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 2)

	entry, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		BorrowDate: time.Now().AddDate(0, 0, 1),
		ReturnDate: time.Now().AddDate(0, 0, 15),
	})
	require.NoError(t, err)

	// A reservation can neither be returned nor lost without being issued.
	for _, target := range []model.BorrowStatus{model.StatusReturned, model.StatusOverdue, model.StatusLost} {
		target := target
		err := UpdateByID(ctx, database, entry.ID, UpdateParams{Status: &target})
		assert.Equal(t, KindIllegalTransition, KindOf(err), "requested -> %s", target)
	}

	got, err := GetByID(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, got.Status)

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 2, avail)
}

func TestUpdateTerminalStatusIsFinal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	entry, err := Create(ctx, database, issuedParams(user.ID, book.ID))
	require.NoError(t, err)

	returned := model.StatusReturned
	require.NoError(t, UpdateByID(ctx, database, entry.ID, UpdateParams{Status: &returned}))

	issued := model.StatusIssued
	err = UpdateByID(ctx, database, entry.ID, UpdateParams{Status: &issued})
	assert.Equal(t, KindIllegalTransition, KindOf(err))
}

func TestLostRemovesCopyFromTotal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book := seedBook(t, database, "Dune", 3)

	// Two open loans bring availability down to 1.
	entry, err := Create(ctx, database, issuedParams(alice.ID, book.ID))
	require.NoError(t, err)
	_, err = Create(ctx, database, issuedParams(bob.ID, book.ID))
	require.NoError(t, err)

	qty, avail := bookCounters(t, database, book.ID)
	require.Equal(t, 3, qty)
	require.Equal(t, 1, avail)

	lost := model.StatusLost
	require.NoError(t, UpdateByID(ctx, database, entry.ID, UpdateParams{Status: &lost}))

	// The copy is gone from the total; the already-consumed unit is not
	// re-added.
	qty, avail = bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 1, avail)
}

func TestDeleteReleasesOpenUnit(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 1)

	entry, err := Create(ctx, database, issuedParams(user.ID, book.ID))
	require.NoError(t, err)

	_, avail := bookCounters(t, database, book.ID)
	require.Equal(t, 0, avail)

	require.NoError(t, DeleteByID(ctx, database, entry.ID))

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 1, qty)
	assert.Equal(t, 1, avail)

	_, err = GetByID(ctx, database, entry.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteRequestedEntryLeavesCountersAlone(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 2)

	entry, err := Create(ctx, database, CreateParams{
		UserID:     user.ID,
		BookID:     book.ID,
		BorrowDate: time.Now().AddDate(0, 0, 1),
		ReturnDate: time.Now().AddDate(0, 0, 15),
	})
	require.NoError(t, err)

	require.NoError(t, DeleteByID(ctx, database, entry.ID))

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, 2, qty)
	assert.Equal(t, 2, avail)
}

func TestUpdateMovesOpenEntryBetweenBooks(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book1 := seedBook(t, database, "Dune", 1)
	book2 := seedBook(t, database, "Hyperion", 1)

	entry, err := Create(ctx, database, issuedParams(user.ID, book1.ID))
	require.NoError(t, err)

	require.NoError(t, UpdateByID(ctx, database, entry.ID, UpdateParams{BookID: &book2.ID}))

	_, avail1 := bookCounters(t, database, book1.ID)
	_, avail2 := bookCounters(t, database, book2.ID)
	assert.Equal(t, 1, avail1, "old book should get its unit back")
	assert.Equal(t, 0, avail2, "new book should consume a unit")

	got, err := GetByID(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, book2.ID, got.BookID)
	assert.Equal(t, model.StatusIssued, got.Status)
}

func TestUpdateMoveFailsWhenTargetExhausted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book1 := seedBook(t, database, "Dune", 1)
	book2 := seedBook(t, database, "Hyperion", 1)

	entry, err := Create(ctx, database, issuedParams(alice.ID, book1.ID))
	require.NoError(t, err)
	_, err = Create(ctx, database, issuedParams(bob.ID, book2.ID))
	require.NoError(t, err)

	err = UpdateByID(ctx, database, entry.ID, UpdateParams{BookID: &book2.ID})
	assert.Equal(t, KindInventoryExhausted, KindOf(err))

	// The failed move must not leak the released unit: the whole transaction
	// rolls back.
	_, avail1 := bookCounters(t, database, book1.ID)
	assert.Equal(t, 0, avail1)

	got, err := GetByID(ctx, database, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, book1.ID, got.BookID)
}

func TestListPaginationAndValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	book := seedBook(t, database, "Dune", 50)

	for i := 0; i < 5; i++ {
		user := seedUser(t, database, string(rune('a'+i))+"-user")
		_, err := Create(ctx, database, issuedParams(user.ID, book.ID))
		require.NoError(t, err)
	}

	page1, err := ListByStatus(ctx, database, model.StatusIssued, 1, 2)
	require.NoError(t, err)
	page2, err := ListByStatus(ctx, database, model.StatusIssued, 2, 2)
	require.NoError(t, err)
	page3, err := ListByStatus(ctx, database, model.StatusIssued, 3, 2)
	require.NoError(t, err)

	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	require.Len(t, page3, 1)
	assert.Less(t, page1[0].ID, page1[1].ID)
	assert.Less(t, page1[1].ID, page2[0].ID)

	_, err = ListByStatus(ctx, database, "bogus", 1, 10)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ListByStatus(ctx, database, model.StatusIssued, 0, 10)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ListByStatus(ctx, database, model.StatusIssued, 1, MaxPageSize+1)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestListByUserAndBook(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	book1 := seedBook(t, database, "Dune", 2)
	book2 := seedBook(t, database, "Hyperion", 2)

	_, err := Create(ctx, database, issuedParams(alice.ID, book1.ID))
	require.NoError(t, err)
	_, err = Create(ctx, database, issuedParams(alice.ID, book2.ID))
	require.NoError(t, err)
	_, err = Create(ctx, database, issuedParams(bob.ID, book1.ID))
	require.NoError(t, err)

	byAlice, err := ListByUserAndStatus(ctx, database, alice.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, byAlice, 2)

	byBook1, err := ListByBookAndStatus(ctx, database, book1.ID, model.StatusIssued, 1, 10)
	require.NoError(t, err)
	assert.Len(t, byBook1, 2)
}

func TestAvailability(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	user := seedUser(t, database, "alice")
	book := seedBook(t, database, "Dune", 3)

	avail, err := Availability(ctx, database, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, avail)

	_, err = Create(ctx, database, issuedParams(user.ID, book.ID))
	require.NoError(t, err)

	avail, err = Availability(ctx, database, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, avail)

	_, err = Availability(ctx, database, 999)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// The global invariant: available always equals quantity minus open entries.
func TestAvailabilityMatchesOpenEntryCount(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	book := seedBook(t, database, "Dune", 4)

	var entries []*model.BorrowEntry
	for i := 0; i < 3; i++ {
		user := seedUser(t, database, string(rune('a'+i))+"-reader")
		entry, err := Create(ctx, database, issuedParams(user.ID, book.ID))
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	returned := model.StatusReturned
	require.NoError(t, UpdateByID(ctx, database, entries[0].ID, UpdateParams{Status: &returned}))
	lost := model.StatusLost
	require.NoError(t, UpdateByID(ctx, database, entries[1].ID, UpdateParams{Status: &lost}))

	open, err := store.CountOpenEntries(ctx, database, book.ID)
	require.NoError(t, err)

	qty, avail := bookCounters(t, database, book.ID)
	assert.Equal(t, qty-open, avail)
	assert.GreaterOrEqual(t, avail, 0)
	assert.LessOrEqual(t, avail, qty)
}
