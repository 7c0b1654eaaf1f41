package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/knjiznica/internal/circulation"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// BorrowsHandler handles borrow entry endpoints.
type BorrowsHandler struct {
	DB *sql.DB
}

type createBorrowRequest struct {
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	Status     string     `json:"status"`
	BorrowDate *time.Time `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`
}

type updateBorrowRequest struct {
	UserID     *int64     `json:"user_id"`
	BookID     *int64     `json:"book_id"`
	Status     *string    `json:"status"`
	BorrowDate *time.Time `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`
}

// listParams parses the shared status/page/size query parameters. Range
// checks are left to the circulation package.
func listParams(r *http.Request) (model.BorrowStatus, int, int, error) {
	q := r.URL.Query()
	status := model.BorrowStatus(q.Get("status"))

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, 0, fmt.Errorf("invalid page")
		}
		page = n
	}

	size := 20
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, 0, fmt.Errorf("invalid size")
		}
		size = n
	}

	return status, page, size, nil
}

// Create handles POST /api/borrows. Regular users can only reserve a book for
// themselves; issuing directly, or creating an entry for someone else, needs
// the manager role.
func (h *BorrowsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createBorrowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	isManager := model.RoleAtLeast(claims.Role, model.RoleManager)
	if !isManager {
		if req.UserID != 0 && req.UserID != claims.UserID {
			jsonError(w, http.StatusForbidden, "cannot create a borrow entry for another user")
			return
		}
		if req.Status != "" && req.Status != string(model.StatusRequested) {
			jsonError(w, http.StatusForbidden, "only managers can issue books directly")
			return
		}
		req.UserID = claims.UserID
	}

	p := circulation.CreateParams{
		UserID: req.UserID,
		BookID: req.BookID,
		Status: model.BorrowStatus(req.Status),
	}
	if req.BorrowDate != nil {
		p.BorrowDate = *req.BorrowDate
	} else if p.Status == model.StatusIssued {
		// Issuing over the counter starts now.
		p.BorrowDate = time.Now()
	}
	if req.ReturnDate != nil {
		p.ReturnDate = *req.ReturnDate
	} else if !p.BorrowDate.IsZero() {
		days, err := store.GetLoanPeriodDays(r.Context(), h.DB)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		p.ReturnDate = p.BorrowDate.AddDate(0, 0, days)
	}

	entry, err := circulation.Create(r.Context(), h.DB, p)
	if err != nil {
		circulationError(w, err)
		return
	}

	slog.Info("borrow entry created", "user", claims.Username, "entry", entry.ID,
		"book", entry.BookID, "status", entry.Status)
	jsonResponse(w, http.StatusCreated, entry)
}

// List handles GET /api/borrows. Supports status, user_id, book_id, page, and
// size query parameters. Regular users only see their own entries.
func (h *BorrowsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	status, page, size, err := listParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	var userID, bookID int64
	if v := q.Get("user_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = n
	}
	if v := q.Get("book_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid book_id")
			return
		}
		bookID = n
	}

	if !model.RoleAtLeast(claims.Role, model.RoleManager) {
		userID = claims.UserID
	}

	var entries []model.BorrowEntry
	switch {
	case userID != 0:
		entries, err = circulation.ListByUserAndStatus(r.Context(), h.DB, userID, status, page, size)
	case bookID != 0:
		entries, err = circulation.ListByBookAndStatus(r.Context(), h.DB, bookID, status, page, size)
	default:
		entries, err = circulation.ListByStatus(r.Context(), h.DB, status, page, size)
	}
	if err != nil {
		circulationError(w, err)
		return
	}
	if entries == nil {
		entries = []model.BorrowEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// ListForUser handles GET /api/users/{id}/borrows. A member can only list
// their own history.
func (h *BorrowsHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if userID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleManager) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	status, page, size, err := listParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := circulation.ListByUserAndStatus(r.Context(), h.DB, userID, status, page, size)
	if err != nil {
		circulationError(w, err)
		return
	}
	if entries == nil {
		entries = []model.BorrowEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// ListForBook handles GET /api/books/{id}/borrows (manager only).
func (h *BorrowsHandler) ListForBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	status, page, size, err := listParams(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := circulation.ListByBookAndStatus(r.Context(), h.DB, bookID, status, page, size)
	if err != nil {
		circulationError(w, err)
		return
	}
	if entries == nil {
		entries = []model.BorrowEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Get handles GET /api/borrows/{id}. Entries are visible to their owner and
// to managers.
func (h *BorrowsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := circulation.GetByID(r.Context(), h.DB, id)
	if err != nil {
		circulationError(w, err)
		return
	}

	if entry.UserID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleManager) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	jsonResponse(w, http.StatusOK, entry)
}

// Update handles PUT /api/borrows/{id} (manager only). Fields left out of the
// body keep their previous values.
func (h *BorrowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req updateBorrowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := circulation.UpdateParams{
		UserID:     req.UserID,
		BookID:     req.BookID,
		BorrowDate: req.BorrowDate,
		ReturnDate: req.ReturnDate,
	}
	if req.Status != nil {
		s := model.BorrowStatus(*req.Status)
		p.Status = &s
	}

	if err := circulation.UpdateByID(r.Context(), h.DB, id, p); err != nil {
		circulationError(w, err)
		return
	}

	entry, err := circulation.GetByID(r.Context(), h.DB, id)
	if err != nil {
		circulationError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("borrow entry updated", "user", claims.Username, "entry", id, "status", entry.Status)
	jsonResponse(w, http.StatusOK, entry)
}

// Delete handles DELETE /api/borrows/{id}. Managers can delete any entry; a
// regular user can only cancel their own reservation while it is still
// requested.
func (h *BorrowsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if !model.RoleAtLeast(claims.Role, model.RoleManager) {
		entry, err := circulation.GetByID(r.Context(), h.DB, id)
		if err != nil {
			circulationError(w, err)
			return
		}
		if entry.UserID != claims.UserID {
			jsonError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		if entry.Status != model.StatusRequested {
			jsonError(w, http.StatusForbidden, "only pending reservations can be cancelled")
			return
		}
	}

	if err := circulation.DeleteByID(r.Context(), h.DB, id); err != nil {
		circulationError(w, err)
		return
	}

	slog.Info("borrow entry deleted", "user", claims.Username, "entry", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "entry deleted"})
}
