package records

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"schoolrecords/internal/logger"
)

// AnnouncementMessage is the queue message type published for new announcements.
const AnnouncementMessage = "announcement"

// Actor identifies who performed an operation, for audit and markedBy defaults.
type Actor struct {
	Name string
	Role string
}

// SystemActor is used when a request carries no identity.
var SystemActor = Actor{Name: "System", Role: "system"}

type actorKey struct{}

// WithActor attaches an actor to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or SystemActor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok && a.Name != "" {
		return a
	}
	return SystemActor
}

// Publisher fans out messages to asynchronous consumers.
type Publisher interface {
	Publish(ctx context.Context, kind string, body []byte) error
}

// BackupClock reports when the last successful backup was taken.
type BackupClock interface {
	LastBackup() time.Time
}

// Service layers audit logging, broadcast and derived presence status on top
// of the Store.
type Service struct {
	store     *Store
	publisher Publisher
	backups   BackupClock
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets where new announcements are broadcast.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithBackups lets SystemStats report the real last backup time.
func WithBackups(b BackupClock) ServiceOption {
	return func(s *Service) { s.backups = b }
}

// NewService wraps store.
func NewService(store *Store, opts ...ServiceOption) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read-only handlers.
func (s *Service) Store() *Store {
	return s.store
}

// RecordActivity appends an audit entry attributed to the actor in ctx.
func (s *Service) RecordActivity(ctx context.Context, action, target, detail string) ActivityLogEntry {
	actor := ActorFrom(ctx)
	return s.store.AppendActivity(ActivityLogEntry{
		ActorName: actor.Name,
		ActorRole: actor.Role,
		Action:    action,
		Target:    target,
		Detail:    detail,
	})
}

// Login authenticates and records the login against the account itself.
func (s *Service) Login(ctx context.Context, username, password string) (Account, error) {
	account, err := s.store.Authenticate(username, password)
	if err != nil {
		logger.Debug().Str("username", username).Msg("login rejected")
		return Account{}, err
	}
	ctx = WithActor(ctx, Actor{Name: account.DisplayName, Role: string(account.Role)})
	s.RecordActivity(ctx, "Login", "Account "+account.Username, "")
	return account, nil
}

// CreateAccount registers an account.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	account, err := s.store.CreateAccount(input)
	if err != nil {
		return Account{}, err
	}
	s.RecordActivity(ctx, "Create", "Account "+account.Username, "role "+string(account.Role))
	return account, nil
}

// Enroll creates an enrollee.
func (s *Service) Enroll(ctx context.Context, input EnrolleeInput) (Enrollee, error) {
	e, err := s.store.CreateEnrollee(input)
	if err != nil {
		return Enrollee{}, err
	}
	s.RecordActivity(ctx, "Create", enrolleeTarget(e), "group "+e.Group)
	return e, nil
}

// ReplaceEnrollee overwrites an enrollee.
func (s *Service) ReplaceEnrollee(ctx context.Context, id int, input EnrolleeInput) (Enrollee, error) {
	e, err := s.store.ReplaceEnrollee(id, input)
	if err != nil {
		return Enrollee{}, err
	}
	s.RecordActivity(ctx, "Update", enrolleeTarget(e), "")
	return e, nil
}

// MarkPresence appends a presence record. An empty date means today and an
// empty markedBy is filled with the acting user's name.
func (s *Service) MarkPresence(ctx context.Context, enrolleeID int, date string, present bool, markedBy string) (PresenceRecord, error) {
	if strings.TrimSpace(date) == "" {
		date = s.store.Today()
	}
	if strings.TrimSpace(markedBy) == "" {
		markedBy = ActorFrom(ctx).Name
	}
	record, err := s.store.MarkPresence(enrolleeID, date, present, markedBy)
	if err != nil {
		return PresenceRecord{}, err
	}
	s.RecordActivity(ctx, "Mark", "Enrollee #"+strconv.Itoa(enrolleeID), string(StateOf(&record))+" on "+record.Date)
	return record, nil
}

// PresenceStatus derives the display state for an enrollee on date from the
// latest appended record.
func (s *Service) PresenceStatus(enrolleeID int, date string) (PresenceState, *PresenceRecord) {
	var latest *PresenceRecord
	for _, r := range s.store.ListPresence(date) {
		if r.EnrolleeID == enrolleeID {
			latest = &r
		}
	}
	return StateOf(latest), latest
}

// DailyRoll lists every enrollee with its derived presence on date.
func (s *Service) DailyRoll(date string) []RollEntry {
	if date == "" {
		date = s.store.Today()
	}
	latest := LatestByEnrollee(s.store.ListPresence(date))
	enrollees := s.store.ListEnrollees()
	out := make([]RollEntry, 0, len(enrollees))
	for _, e := range enrollees {
		entry := RollEntry{Enrollee: e}
		if r, ok := latest[e.ID]; ok {
			entry.Record = &r
		}
		entry.Status = StateOf(entry.Record)
		out = append(out, entry)
	}
	return out
}

// CreateObligation stores a payment obligation.
func (s *Service) CreateObligation(ctx context.Context, input ObligationInput) (PaymentObligation, error) {
	o, err := s.store.CreateObligation(input)
	if err != nil {
		return PaymentObligation{}, err
	}
	s.RecordActivity(ctx, "Create", obligationTarget(o), o.Period+" "+strconv.Itoa(o.Amount))
	return o, nil
}

// SettleObligation marks an obligation as paid.
func (s *Service) SettleObligation(ctx context.Context, id int, paidAt time.Time) (PaymentObligation, error) {
	o, err := s.store.SettleObligation(id, paidAt)
	if err != nil {
		return PaymentObligation{}, err
	}
	s.RecordActivity(ctx, "Settle", obligationTarget(o), strconv.Itoa(o.Amount))
	return o, nil
}

// PublishAnnouncement stores an announcement and broadcasts it. A broadcast
// failure is logged and does not fail the call.
func (s *Service) PublishAnnouncement(ctx context.Context, input AnnouncementInput) (Announcement, error) {
	a, err := s.store.CreateAnnouncement(input)
	if err != nil {
		return Announcement{}, err
	}
	s.RecordActivity(ctx, "Publish", "Announcement #"+strconv.Itoa(a.ID), a.Title)

	if s.publisher != nil {
		body, err := json.Marshal(a)
		if err == nil {
			err = s.publisher.Publish(ctx, AnnouncementMessage, body)
		}
		if err != nil {
			logger.Warn().Err(err).Int("announcement_id", a.ID).Msg("announcement broadcast failed")
		}
	}
	return a, nil
}

// UpdateSettings merges patch into the organization profile.
func (s *Service) UpdateSettings(ctx context.Context, patch SettingsPatch) (OrganizationProfile, error) {
	profile, err := s.store.UpdateSettings(patch)
	if err != nil {
		return OrganizationProfile{}, err
	}
	if fields := patch.Fields(); len(fields) > 0 {
		s.RecordActivity(ctx, "Update", "Settings", strings.Join(fields, ", "))
	}
	return profile, nil
}

// DashboardStats proxies the store.
func (s *Service) DashboardStats() DashboardStats {
	return s.store.DashboardStats()
}

// SystemStats overlays the backup subsystem's last run when one is wired.
func (s *Service) SystemStats() SystemStats {
	stats := s.store.SystemStats()
	if s.backups != nil {
		if t := s.backups.LastBackup(); !t.IsZero() {
			stats.LastBackupAt = &t
		}
	}
	return stats
}

func enrolleeTarget(e Enrollee) string {
	return "Enrollee #" + strconv.Itoa(e.ID) + " " + e.Name
}

func obligationTarget(o PaymentObligation) string {
	return "Obligation #" + strconv.Itoa(o.ID)
}
