package records

import (
	"fmt"
	"sort"
	"time"
)

const (
	PresenceSourceRecords  = "records"
	PresenceSourceEstimate = "estimate"
)

// DashboardStats summarizes headcounts and fees. presentToday counts
// enrollees whose latest mark for the store's current date is present,
// unless the store was built WithEstimatedPresence.
func (s *Store) DashboardStats() DashboardStats {
	today := s.Today()
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := DashboardStats{
		TotalEnrollees:         len(s.state.enrollees),
		TotalStaff:             s.countRole(RoleInstructor),
		PendingObligationCount: s.countByStatus(StatusPending),
		TotalCollected:         s.sumByStatus(StatusPaid),
		TotalPending:           s.sumByStatus(StatusPending),
	}
	if s.estimatePresence {
		stats.PresentToday = len(s.state.enrollees) * 9 / 10
		stats.PresentTodaySource = PresenceSourceEstimate
		return stats
	}
	stats.PresentToday = s.attendance(today).Present
	stats.PresentTodaySource = PresenceSourceRecords
	return stats
}

// SystemStats reports account and revenue totals together with the
// configured health label, process uptime and last backup time.
func (s *Store) SystemStats() SystemStats {
	now := s.nowFn()
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRole := make(map[Role]int, len(Roles))
	for _, r := range Roles {
		byRole[r] = 0
	}
	for _, a := range s.state.accounts {
		byRole[a.Role]++
	}
	stats := SystemStats{
		TotalAccounts:    len(s.state.accounts),
		TotalEnrollees:   len(s.state.enrollees),
		TotalStaffByRole: byRole,
		TotalRevenue:     s.sumByStatus(StatusPaid),
		SystemHealth:     s.healthLabel,
		Uptime:           FormatUptime(now.Sub(s.startedAt)),
	}
	if !s.lastBackup.IsZero() {
		t := s.lastBackup
		stats.LastBackupAt = &t
	}
	return stats
}

// ClassDistribution counts enrollees per group, ordered by group name.
func (s *Store) ClassDistribution() []GroupCount {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, e := range s.state.enrollees {
		counts[e.Group]++
	}
	s.mu.RUnlock()

	out := make([]GroupCount, 0, len(counts))
	for group, n := range counts {
		out = append(out, GroupCount{Group: group, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// FeeCollectionSummary sums paid and pending amounts.
func (s *Store) FeeCollectionSummary() FeeCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeCollection()
}

// Attendance derives present/absent/unmarked counts for date.
func (s *Store) Attendance(date string) AttendanceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attendance(date)
}

// Reports bundles fee collection, class distribution and attendance for date.
func (s *Store) Reports(date string) Report {
	if date == "" {
		date = s.Today()
	}
	return Report{
		FeeCollection:     s.FeeCollectionSummary(),
		ClassDistribution: s.ClassDistribution(),
		Attendance:        s.Attendance(date),
	}
}

func (s *Store) feeCollection() FeeCollection {
	collected := s.sumByStatus(StatusPaid)
	pending := s.sumByStatus(StatusPending)
	return FeeCollection{Collected: collected, Pending: pending, Total: collected + pending}
}

func (s *Store) attendance(date string) AttendanceSummary {
	latest := LatestByEnrollee(filterPresence(s.state.presence, func(r PresenceRecord) bool { return r.Date == date }))
	summary := AttendanceSummary{Date: date}
	for _, e := range s.state.enrollees {
		r, ok := latest[e.ID]
		switch {
		case !ok:
			summary.Unmarked++
		case r.Present:
			summary.Present++
		default:
			summary.Absent++
		}
	}
	return summary
}

func (s *Store) countRole(role Role) int {
	n := 0
	for _, a := range s.state.accounts {
		if a.Role == role {
			n++
		}
	}
	return n
}

// FormatUptime renders d as "2d 3h 4m", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	if d < time.Minute {
		return "0m"
	}
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
