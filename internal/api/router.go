package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/knjiznica/internal/model"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	booksHandler := &BooksHandler{DB: db}
	borrowsHandler := &BorrowsHandler{DB: db}
	settingsHandler := &SettingsHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("GET /api/users/{id}/borrows", authMW(http.HandlerFunc(borrowsHandler.ListForUser)))

	// Books: read (all roles), write (manager+).
	mux.Handle("GET /api/books", authMW(http.HandlerFunc(booksHandler.List)))
	mux.Handle("POST /api/books", authMW(requireManager(http.HandlerFunc(booksHandler.Create))))
	mux.Handle("GET /api/books/{id}", authMW(http.HandlerFunc(booksHandler.Get)))
	mux.Handle("PUT /api/books/{id}", authMW(requireManager(http.HandlerFunc(booksHandler.Update))))
	mux.Handle("DELETE /api/books/{id}", authMW(requireManager(http.HandlerFunc(booksHandler.Delete))))
	mux.Handle("POST /api/books/{id}/copies", authMW(requireManager(http.HandlerFunc(booksHandler.AddCopies))))
	mux.Handle("GET /api/books/{id}/availability", authMW(http.HandlerFunc(booksHandler.Availability)))
	mux.Handle("PUT /api/books/{id}/cover", authMW(requireManager(http.HandlerFunc(booksHandler.UploadCover))))
	mux.Handle("GET /api/books/{id}/cover", authMW(http.HandlerFunc(booksHandler.GetCover)))
	mux.Handle("GET /api/books/{id}/borrows", authMW(requireManager(http.HandlerFunc(borrowsHandler.ListForBook))))

	// Borrow entries: per-handler access rules (users see and cancel only
	// their own entries), except updates which are manager only.
	mux.Handle("POST /api/borrows", authMW(http.HandlerFunc(borrowsHandler.Create)))
	mux.Handle("GET /api/borrows", authMW(http.HandlerFunc(borrowsHandler.List)))
	mux.Handle("GET /api/borrows/{id}", authMW(http.HandlerFunc(borrowsHandler.Get)))
	mux.Handle("PUT /api/borrows/{id}", authMW(requireManager(http.HandlerFunc(borrowsHandler.Update))))
	mux.Handle("DELETE /api/borrows/{id}", authMW(http.HandlerFunc(borrowsHandler.Delete)))

	// Settings: read (manager+), write (admin).
	mux.Handle("GET /api/settings/loan-period", authMW(requireManager(http.HandlerFunc(settingsHandler.GetLoanPeriod))))
	mux.Handle("PUT /api/settings/loan-period", authMW(requireAdmin(http.HandlerFunc(settingsHandler.SetLoanPeriod))))

	return mux
}
