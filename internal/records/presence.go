package records

import (
	"strings"
	"time"

	"schoolrecords/internal/apperrors"
)

// MarkPresence appends a presence record. Repeated marks for the same
// enrollee and date are kept; the most recently appended one is authoritative.
func (s *Store) MarkPresence(enrolleeID int, date string, present bool, markedBy string) (PresenceRecord, error) {
	date = strings.TrimSpace(date)
	markedBy = strings.TrimSpace(markedBy)
	if enrolleeID <= 0 {
		return PresenceRecord{}, apperrors.Validation("enrolleeId", "enrolleeId must be greater than 0")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return PresenceRecord{}, apperrors.Validation("date", "date must be formatted as "+DateLayout)
	}
	if markedBy == "" {
		return PresenceRecord{}, apperrors.Validation("markedBy", "markedBy is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.seq.Presence++
	record := PresenceRecord{
		ID:         s.state.seq.Presence,
		EnrolleeID: enrolleeID,
		Date:       date,
		Present:    present,
		MarkedBy:   markedBy,
		MarkedAt:   s.nowFn(),
	}
	s.state.presence = append(s.state.presence, record)
	return record, nil
}

// ListPresence returns every record, or only those for date when it is non-empty.
func (s *Store) ListPresence(date string) []PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if date == "" {
		return append([]PresenceRecord{}, s.state.presence...)
	}
	return filterPresence(s.state.presence, func(r PresenceRecord) bool { return r.Date == date })
}

// ListPresenceForEnrollee returns the enrollee's records in marking order.
func (s *Store) ListPresenceForEnrollee(enrolleeID int) []PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterPresence(s.state.presence, func(r PresenceRecord) bool { return r.EnrolleeID == enrolleeID })
}

func filterPresence(in []PresenceRecord, keep func(PresenceRecord) bool) []PresenceRecord {
	out := []PresenceRecord{}
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// LatestByEnrollee collapses records to the last appended one per enrollee.
// Input must be in append order.
func LatestByEnrollee(records []PresenceRecord) map[int]PresenceRecord {
	latest := make(map[int]PresenceRecord, len(records))
	for _, r := range records {
		latest[r.EnrolleeID] = r
	}
	return latest
}

// StateOf maps an optional record to its display state.
func StateOf(record *PresenceRecord) PresenceState {
	switch {
	case record == nil:
		return StateUnmarked
	case record.Present:
		return StatePresent
	default:
		return StateAbsent
	}
}
