package model

import "time"

// Book represents a catalog entry with its physical copy counters.
// Quantity is the total number of owned copies; Available is how many of
// those can currently be lent out. Available is derived state: it must equal
// Quantity minus the number of open borrow entries for the book, and only the
// circulation package may change either counter after initial stocking.
type Book struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author,omitempty"`
	Category  string     `json:"category,omitempty"`
	Quantity  int        `json:"quantity"`
	Available int        `json:"available"`
	CoverMime string     `json:"cover_mime,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
