// Package records owns the organization's entities in memory and computes
// joined views and aggregates over them on read.
package records

import (
	"sort"
	"sync"
	"time"
)

// Sequences holds the last id handed out per collection.
type Sequences struct {
	Accounts      int `json:"accounts"`
	Enrollees     int `json:"enrollees"`
	Presence      int `json:"presence"`
	Obligations   int `json:"obligations"`
	Announcements int `json:"announcements"`
	Activity      int `json:"activity"`
}

type state struct {
	accounts      []Account
	enrollees     []Enrollee
	presence      []PresenceRecord
	obligations   []PaymentObligation
	announcements []Announcement
	activity      []ActivityLogEntry
	profile       OrganizationProfile
	seq           Sequences
}

// Snapshot is a point-in-time copy of the whole store, used by backups.
type Snapshot struct {
	Accounts      []Account           `json:"accounts"`
	Enrollees     []Enrollee          `json:"enrollees"`
	Presence      []PresenceRecord    `json:"presence"`
	Obligations   []PaymentObligation `json:"obligations"`
	Announcements []Announcement      `json:"announcements"`
	Activity      []ActivityLogEntry  `json:"activity"`
	Profile       OrganizationProfile `json:"profile"`
	Sequences     Sequences           `json:"sequences"`
}

// Store is the in-memory entity store. All collections keep insertion
// order, which equals id order because ids are only ever appended.
type Store struct {
	mu        sync.RWMutex
	state     state
	nowFn     func() time.Time
	startedAt time.Time

	estimatePresence bool
	healthLabel      string
	lastBackup       time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for defaults and "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithEstimatedPresence makes DashboardStats report presentToday as 90% of
// enrollment instead of counting today's presence records.
func WithEstimatedPresence(enabled bool) Option {
	return func(s *Store) { s.estimatePresence = enabled }
}

// WithSystemLabels sets the placeholder values reported by SystemStats.
func WithSystemLabels(health string, lastBackup time.Time) Option {
	return func(s *Store) {
		if health != "" {
			s.healthLabel = health
		}
		s.lastBackup = lastBackup
	}
}

// WithProfile sets the initial organization profile.
func WithProfile(p OrganizationProfile) Option {
	return func(s *Store) { s.state.profile = p }
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:       newState(),
		nowFn:       func() time.Time { return time.Now().UTC() },
		healthLabel: "Healthy",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.nowFn()
	return s
}

func newState() state {
	return state{
		accounts:      []Account{},
		enrollees:     []Enrollee{},
		presence:      []PresenceRecord{},
		obligations:   []PaymentObligation{},
		announcements: []Announcement{},
		activity:      []ActivityLogEntry{},
	}
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.nowFn()
}

// Today returns the store's current calendar date.
func (s *Store) Today() string {
	return s.nowFn().Format(DateLayout)
}

// Counts reports the size of every collection.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"accounts":      len(s.state.accounts),
		"enrollees":     len(s.state.enrollees),
		"presence":      len(s.state.presence),
		"obligations":   len(s.state.obligations),
		"announcements": len(s.state.announcements),
		"activity":      len(s.state.activity),
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Accounts:      append([]Account{}, s.state.accounts...),
		Enrollees:     cloneEnrollees(s.state.enrollees),
		Presence:      append([]PresenceRecord{}, s.state.presence...),
		Obligations:   cloneObligations(s.state.obligations),
		Announcements: append([]Announcement{}, s.state.announcements...),
		Activity:      append([]ActivityLogEntry{}, s.state.activity...),
		Profile:       s.state.profile,
		Sequences:     s.state.seq,
	}
}

// ImportState replaces the store state with the provided snapshot. Records
// are re-sorted by id and sequences are raised so that no id is reused. The
// activity log is append-only: entries recorded after the snapshot was taken
// are kept and snapshot entries are merged in by id.
func (s *Store) ImportState(snapshot Snapshot) {
	st := newState()
	st.accounts = append(st.accounts, snapshot.Accounts...)
	st.enrollees = append(st.enrollees, cloneEnrollees(snapshot.Enrollees)...)
	st.presence = append(st.presence, snapshot.Presence...)
	st.obligations = append(st.obligations, cloneObligations(snapshot.Obligations)...)
	st.announcements = append(st.announcements, snapshot.Announcements...)
	st.activity = append(st.activity, snapshot.Activity...)
	st.profile = snapshot.Profile
	st.seq = snapshot.Sequences

	sort.SliceStable(st.accounts, func(i, j int) bool { return st.accounts[i].ID < st.accounts[j].ID })
	sort.SliceStable(st.enrollees, func(i, j int) bool { return st.enrollees[i].ID < st.enrollees[j].ID })
	sort.SliceStable(st.presence, func(i, j int) bool { return st.presence[i].ID < st.presence[j].ID })
	sort.SliceStable(st.obligations, func(i, j int) bool { return st.obligations[i].ID < st.obligations[j].ID })
	sort.SliceStable(st.announcements, func(i, j int) bool { return st.announcements[i].ID < st.announcements[j].ID })
	sort.SliceStable(st.activity, func(i, j int) bool { return st.activity[i].ID < st.activity[j].ID })

	if n := len(st.accounts); n > 0 {
		st.seq.Accounts = max(st.seq.Accounts, st.accounts[n-1].ID)
	}
	if n := len(st.enrollees); n > 0 {
		st.seq.Enrollees = max(st.seq.Enrollees, st.enrollees[n-1].ID)
	}
	if n := len(st.presence); n > 0 {
		st.seq.Presence = max(st.seq.Presence, st.presence[n-1].ID)
	}
	if n := len(st.obligations); n > 0 {
		st.seq.Obligations = max(st.seq.Obligations, st.obligations[n-1].ID)
	}
	if n := len(st.announcements); n > 0 {
		st.seq.Announcements = max(st.seq.Announcements, st.announcements[n-1].ID)
	}
	if n := len(st.activity); n > 0 {
		st.seq.Activity = max(st.seq.Activity, st.activity[n-1].ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// sequences never move backwards, even when restoring an older snapshot
	st.seq.Accounts = max(st.seq.Accounts, s.state.seq.Accounts)
	st.seq.Enrollees = max(st.seq.Enrollees, s.state.seq.Enrollees)
	st.seq.Presence = max(st.seq.Presence, s.state.seq.Presence)
	st.seq.Obligations = max(st.seq.Obligations, s.state.seq.Obligations)
	st.seq.Announcements = max(st.seq.Announcements, s.state.seq.Announcements)
	st.seq.Activity = max(st.seq.Activity, s.state.seq.Activity)
	st.activity = mergeActivity(s.state.activity, st.activity)
	s.state = st
}

// mergeActivity returns current plus every entry of imported whose id is not
// already present, ordered by id.
func mergeActivity(current, imported []ActivityLogEntry) []ActivityLogEntry {
	seen := make(map[int]struct{}, len(current))
	out := make([]ActivityLogEntry, 0, len(current)+len(imported))
	for _, e := range current {
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	for _, e := range imported {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// findIndex locates id in a slice kept in ascending id order.
func findIndex(n int, idAt func(int) int, id int) (int, bool) {
	i := sort.Search(n, func(i int) bool { return idAt(i) >= id })
	if i < n && idAt(i) == id {
		return i, true
	}
	return 0, false
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneEnrollee(e Enrollee) Enrollee {
	e.Address = cloneString(e.Address)
	e.DateOfBirth = cloneString(e.DateOfBirth)
	e.MedicalNotes = cloneString(e.MedicalNotes)
	return e
}

func cloneEnrollees(in []Enrollee) []Enrollee {
	out := make([]Enrollee, 0, len(in))
	for _, e := range in {
		out = append(out, cloneEnrollee(e))
	}
	return out
}

func cloneObligation(o PaymentObligation) PaymentObligation {
	o.PaidDate = cloneTime(o.PaidDate)
	return o
}

func cloneObligations(in []PaymentObligation) []PaymentObligation {
	out := make([]PaymentObligation, 0, len(in))
	for _, o := range in {
		out = append(out, cloneObligation(o))
	}
	return out
}
