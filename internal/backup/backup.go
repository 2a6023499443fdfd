// Package backup snapshots the records store to a pluggable sink and
// restores it on demand.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolrecords/internal/apperrors"
	"schoolrecords/internal/logger"
	"schoolrecords/internal/records"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFS       = "fs"
	DriverS3       = "s3"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Info describes one stored backup.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
	Driver    string    `json:"driver"`
}

// Sink stores backup payloads.
type Sink interface {
	Driver() string
	Save(ctx context.Context, info Info, payload []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	// List returns every stored backup, newest first.
	List(ctx context.Context) ([]Info, error)
}

// Source is the state being backed up.
type Source interface {
	ExportState() records.Snapshot
	ImportState(records.Snapshot)
}

// Auditor receives an activity entry for each backup and restore.
type Auditor interface {
	RecordActivity(ctx context.Context, action, target, detail string) records.ActivityLogEntry
}

// Manager coordinates snapshots between a Source and a Sink.
type Manager struct {
	source  Source
	sink    Sink
	nowFn   func() time.Time
	auditor Auditor
	observe func(op string, err error)

	mu   sync.RWMutex
	last time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.nowFn = now }
}

// WithAuditor records backup and restore operations in the activity log.
func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.auditor = a }
}

// WithObserver is called after every create and restore with its outcome.
func WithObserver(fn func(op string, err error)) Option {
	return func(m *Manager) { m.observe = fn }
}

// NewManager builds a manager.
func NewManager(source Source, sink Sink, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		sink:   sink,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Driver reports the sink in use.
func (m *Manager) Driver() string {
	return m.sink.Driver()
}

// LastBackup returns the time of the newest backup known to this manager.
func (m *Manager) LastBackup() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Refresh loads the newest backup time from the sink.
func (m *Manager) Refresh(ctx context.Context) error {
	list, err := m.sink.List(ctx)
	if err != nil {
		return err
	}
	if len(list) > 0 {
		m.markLast(list[0].CreatedAt)
	}
	return nil
}

// List returns stored backups newest first.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	return m.sink.List(ctx)
}

// Create snapshots the source and saves it.
func (m *Manager) Create(ctx context.Context) (info Info, err error) {
	defer func() { m.notify(ctx, "backup", info, err) }()

	payload, err := json.Marshal(m.source.ExportState())
	if err != nil {
		return Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	info = Info{
		ID:        uuid.NewString(),
		CreatedAt: m.nowFn().UTC(),
		Size:      int64(len(payload)),
		Driver:    m.sink.Driver(),
	}
	if err := m.sink.Save(ctx, info, payload); err != nil {
		return Info{}, fmt.Errorf("save backup: %w", err)
	}
	m.markLast(info.CreatedAt)
	return info, nil
}

// Restore replaces the source state with backup id.
func (m *Manager) Restore(ctx context.Context, id string) (info Info, err error) {
	defer func() { m.notify(ctx, "restore", info, err) }()

	payload, err := m.sink.Load(ctx, id)
	if err != nil {
		return Info{}, err
	}
	var snapshot records.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Info{}, fmt.Errorf("decode backup %s: %w", id, err)
	}
	m.source.ImportState(snapshot)
	return Info{ID: id, Size: int64(len(payload)), Driver: m.sink.Driver(), CreatedAt: m.nowFn().UTC()}, nil
}

// Run takes a backup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Create(ctx); err != nil {
				logger.Error().Err(err).Str("driver", m.sink.Driver()).Msg("scheduled backup failed")
			}
		}
	}
}

func (m *Manager) markLast(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.last) {
		m.last = t
	}
}

func (m *Manager) notify(ctx context.Context, op string, info Info, err error) {
	if m.observe != nil {
		m.observe(op, err)
	}
	if err != nil {
		logger.Warn().Err(err).Str("op", op).Str("driver", m.sink.Driver()).Msg("backup operation failed")
		return
	}
	logger.Info().Str("op", op).Str("id", info.ID).Int64("size", info.Size).Msg("backup operation completed")
	if m.auditor != nil {
		action := "Backup"
		if op == "restore" {
			action = "Restore"
		}
		m.auditor.RecordActivity(ctx, action, "Backup "+info.ID, m.sink.Driver())
	}
}

func notFound(id string) error {
	return apperrors.NotFound("backup " + id + " not found")
}

// objectLayout sorts lexically in creation order.
const objectLayout = "20060102T150405.000000000Z"

func objectName(info Info) string {
	return info.CreatedAt.UTC().Format(objectLayout) + "_" + info.ID + ".json"
}

func parseObjectName(name string) (Info, bool) {
	name = strings.TrimSuffix(name, ".json")
	stamp, id, ok := strings.Cut(name, "_")
	if !ok || id == "" {
		return Info{}, false
	}
	at, err := time.Parse(objectLayout, stamp)
	if err != nil {
		return Info{}, false
	}
	return Info{ID: id, CreatedAt: at}, true
}

func sortNewestFirst(list []Info) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
