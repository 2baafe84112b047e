package state

import (
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/rota/pkg/types"
)

// dateLayout is the calendar-date format used by the vacation ledger.
const dateLayout = "2006-01-02"

// ParseReturnDate validates a vacation return date. The date must parse as
// YYYY-MM-DD and fall strictly after today (calendar comparison, UTC).
func ParseReturnDate(value string, today time.Time) (string, error) {
	d, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	if !d.After(calendarDay(today)) {
		return "", fmt.Errorf("return date %s must be in the future", value)
	}
	return d.Format(dateLayout), nil
}

// StartVacation moves a queue member onto the vacation ledger, or updates
// the return date for a member already away. Returns false when the handle
// is in neither structure.
func StartVacation(s *types.State, handle, returnDate, reason string) bool {
	for i := range s.PassUntil {
		if types.EqualHandle(s.PassUntil[i].Handle, handle) {
			s.PassUntil[i].ReturnDate = returnDate
			if reason != "" {
				s.PassUntil[i].Reason = reason
			}
			return true
		}
	}
	for i, m := range s.Queue {
		if !types.EqualHandle(m.Handle, handle) {
			continue
		}
		s.Queue = append(s.Queue[:i], s.Queue[i+1:]...)
		// Removing a slot below the cursor shifts everyone after it down
		// one; the cursor follows so the same member stays next.
		if len(s.Queue) > 0 {
			if i < s.CurrentIndex {
				s.CurrentIndex--
			}
			s.CurrentIndex %= len(s.Queue)
		} else {
			s.CurrentIndex = 0
		}
		s.PassUntil = append(s.PassUntil, types.VacationEntry{
			Handle:     m.Handle,
			Name:       m.Name,
			ReturnDate: returnDate,
			Reason:     reason,
		})
		return true
	}
	return false
}

// ProcessExpirations moves every ledger entry whose return date has arrived
// back into the queue. Returnees are reinserted at the cursor position so
// they are next up. Safe to call on every dispatch; a day with no
// expirations is a no-op.
func ProcessExpirations(s *types.State, today time.Time) []string {
	day := calendarDay(today)

	var returned []string
	remaining := s.PassUntil[:0]
	for _, entry := range s.PassUntil {
		due, err := time.ParseInLocation(dateLayout, entry.ReturnDate, time.UTC)
		if err == nil && due.After(day) {
			remaining = append(remaining, entry)
			continue
		}
		// Unparseable dates expire immediately rather than stranding
		// the member on the ledger forever.
		member := types.Member{Handle: entry.Handle, Name: entry.Name}
		at := s.CurrentIndex
		if at > len(s.Queue) {
			at = len(s.Queue)
		}
		s.Queue = append(s.Queue[:at], append([]types.Member{member}, s.Queue[at:]...)...)
		returned = append(returned, entry.Handle)
	}
	s.PassUntil = remaining
	return returned
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
