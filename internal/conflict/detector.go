// Package conflict detects overlapping commitments for a staff member.
package conflict

import (
	"salonsched/internal/domain"
	"salonsched/internal/rules"
	"salonsched/internal/timeutil"
)

// Overlaps is the half-open intersection test; a.End == b.Start is not an overlap.
func Overlaps(a, b timeutil.Interval) bool {
	return a.Overlaps(b)
}

// HasConflict reports whether proposal, padded by buf, hits any active booking in existing
// padded the same way. Bookings with ID exceptID are ignored.
func HasConflict(proposal timeutil.Interval, existing []domain.Booking, buf domain.Buffer, exceptID string) bool {
	_, found := FirstConflict(proposal, existing, buf, exceptID)
	return found
}

// FirstConflict returns the first booking blocking proposal.
func FirstConflict(proposal timeutil.Interval, existing []domain.Booking, buf domain.Buffer, exceptID string) (domain.Booking, bool) {
	padded := rules.ApplyBuffer(buf, proposal.Start, proposal.Duration()).Occupied()
	for _, b := range existing {
		if !b.Status.IsActive() || (exceptID != "" && b.ID == exceptID) {
			continue
		}
		occupied := rules.ApplyBuffer(buf, b.ScheduledAt, b.Duration()).Occupied()
		if Overlaps(padded, occupied) {
			return b, true
		}
	}
	return domain.Booking{}, false
}

// CountOverlapping counts active bookings whose unpadded interval overlaps iv.
func CountOverlapping(iv timeutil.Interval, existing []domain.Booking, exceptID string) int {
	n := 0
	for _, b := range existing {
		if !b.Status.IsActive() || (exceptID != "" && b.ID == exceptID) {
			continue
		}
		if Overlaps(iv, b.Interval()) {
			n++
		}
	}
	return n
}
