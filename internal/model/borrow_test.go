package model

import "testing"

func TestValidStatus(t *testing.T) {
	for _, s := range []BorrowStatus{StatusRequested, StatusIssued, StatusReturned, StatusOverdue, StatusLost} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []BorrowStatus{"", "borrowed", "ISSUED", "late"} {
		if ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = true, want false", s)
		}
	}
}

func TestIsOpen(t *testing.T) {
	open := map[BorrowStatus]bool{
		StatusRequested: false,
		StatusIssued:    true,
		StatusOverdue:   true,
		StatusReturned:  false,
		StatusLost:      false,
	}
	for s, want := range open {
		if got := s.IsOpen(); got != want {
			t.Errorf("%q.IsOpen() = %v, want %v", s, got, want)
		}
	}
}

// TestCanTransitionClosure exhaustively checks every status pair against the
// expected transition table.
func TestCanTransitionClosure(t *testing.T) {
	all := []BorrowStatus{StatusRequested, StatusIssued, StatusReturned, StatusOverdue, StatusLost}

	allowed := map[BorrowStatus]map[BorrowStatus]bool{
		StatusRequested: {StatusIssued: true},
		StatusIssued:    {StatusReturned: true, StatusOverdue: true, StatusLost: true},
		StatusOverdue:   {StatusReturned: true, StatusLost: true},
		StatusReturned:  {},
		StatusLost:      {},
	}

	for _, old := range all {
		for _, new := range all {
			want := old == new || allowed[old][new]
			if got := CanTransition(old, new); got != want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", old, new, got, want)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []BorrowStatus{StatusReturned, StatusLost} {
		if !s.IsTerminal() {
			t.Errorf("%q.IsTerminal() = false, want true", s)
		}
		if len(transitions[s]) != 0 {
			t.Errorf("terminal status %q has outgoing transitions", s)
		}
	}
}
