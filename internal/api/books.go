package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/erazemk/knjiznica/internal/circulation"
	"github.com/erazemk/knjiznica/internal/imaging"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// BooksHandler handles catalog endpoints.
type BooksHandler struct {
	DB *sql.DB
}

type createBookRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

type updateBookRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`
}

type addCopiesRequest struct {
	Delta int `json:"delta"`
}

// List handles GET /api/books.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	books, err := store.ListBooks(r.Context(), h.DB, category)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if books == nil {
		books = []model.Book{}
	}
	jsonResponse(w, http.StatusOK, books)
}

// Create handles POST /api/books.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}
	if req.Quantity < 0 {
		jsonError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	book, err := store.CreateBook(r.Context(), h.DB, req.Title, req.Author, req.Category, req.Quantity)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create book")
		return
	}

	jsonResponse(w, http.StatusCreated, book)
}

// Get handles GET /api/books/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get book")
		return
	}
	if book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	jsonResponse(w, http.StatusOK, book)
}

// Update handles PUT /api/books/{id}. Only catalog metadata is writable here;
// the copy counters are managed through /copies and the borrow lifecycle.
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	var req updateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		jsonError(w, http.StatusBadRequest, "title required")
		return
	}

	if err := store.UpdateBook(r.Context(), h.DB, id, req.Title, req.Author, req.Category); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update book")
		return
	}

	book, _ := store.GetBook(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, book)
}

// Delete handles DELETE /api/books/{id}.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	if err := store.DeleteBook(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "book deleted"})
}

// AddCopies handles POST /api/books/{id}/copies. A positive delta records
// newly acquired copies, a negative one retires shelved copies.
func (h *BooksHandler) AddCopies(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	var req addCopiesRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		jsonError(w, http.StatusBadRequest, "delta must be non-zero")
		return
	}

	if err := store.AddBookCopies(r.Context(), h.DB, id, req.Delta); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}

	book, _ := store.GetBook(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, book)
}

// Availability handles GET /api/books/{id}/availability.
func (h *BooksHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	available, err := circulation.Availability(r.Context(), h.DB, id)
	if err != nil {
		circulationError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]int{"available": available})
}

// UploadCover handles PUT /api/books/{id}/cover.
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get book")
		return
	}
	if book == nil || book.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	// Limit to 5 MB.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("cover")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "cover file required")
		return
	}
	defer file.Close()

	processed, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetBookCover(r.Context(), h.DB, id, processed.Data, processed.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save cover")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "cover uploaded"})
}

// GetCover handles GET /api/books/{id}/cover.
func (h *BooksHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	data, mime, err := store.GetBookCover(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get cover")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no cover")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
