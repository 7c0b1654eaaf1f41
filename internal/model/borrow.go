package model

import "time"

// BorrowStatus is the lifecycle state of a borrow entry.
type BorrowStatus string

// Borrow statuses.
const (
	StatusRequested BorrowStatus = "requested"
	StatusIssued    BorrowStatus = "issued"
	StatusReturned  BorrowStatus = "returned"
	StatusOverdue   BorrowStatus = "overdue"
	StatusLost      BorrowStatus = "lost"
)

// BorrowEntry represents a single loan of a book copy to a user.
type BorrowEntry struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"user_id"`
	BookID     int64        `json:"book_id"`
	BorrowDate time.Time    `json:"borrow_date"`
	ReturnDate time.Time    `json:"return_date"`
	Status     BorrowStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`

	// Joined fields (not always populated).
	Username  string `json:"username,omitempty"`
	BookTitle string `json:"book_title,omitempty"`
}

// ValidStatus reports whether s is one of the known borrow statuses.
func ValidStatus(s BorrowStatus) bool {
	switch s {
	case StatusRequested, StatusIssued, StatusReturned, StatusOverdue, StatusLost:
		return true
	}
	return false
}

// IsOpen reports whether a status consumes one inventory unit.
// Open entries are the ones counted against a book's availability.
func (s BorrowStatus) IsOpen() bool {
	return s == StatusIssued || s == StatusOverdue
}

// IsTerminal reports whether a status allows no further transitions.
func (s BorrowStatus) IsTerminal() bool {
	return s == StatusReturned || s == StatusLost
}

// transitions is the set of legal status changes. A requested entry can only
// be issued (cancellation is modeled as deletion, and a reservation cannot be
// lost before the copy leaves the shelf). Returned and lost are terminal.
var transitions = map[BorrowStatus][]BorrowStatus{
	StatusRequested: {StatusIssued},
	StatusIssued:    {StatusReturned, StatusOverdue, StatusLost},
	StatusOverdue:   {StatusReturned, StatusLost},
}

// CanTransition reports whether the status change from old to new is legal.
// A no-op (old == new) is always allowed.
func CanTransition(old, new BorrowStatus) bool {
	if old == new {
		return true
	}
	for _, s := range transitions[old] {
		if s == new {
			return true
		}
	}
	return false
}
