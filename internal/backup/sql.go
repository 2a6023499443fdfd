package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"schoolrecords/internal/store"
)

type dialect struct {
	driver string
	ddl    string
	insert string
	load   string
	list   string
	// textPayload sends the payload as a string, for JSONB columns.
	textPayload bool
}

var postgresDialect = dialect{
	driver: DriverPostgres,
	ddl: `CREATE TABLE IF NOT EXISTS record_backups (
		id TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		size BIGINT NOT NULL,
		payload JSONB NOT NULL
	)`,
	insert:      `INSERT INTO record_backups (id, created_at, size, payload) VALUES ($1, $2, $3, $4)`,
	load:        `SELECT payload FROM record_backups WHERE id = $1`,
	list:        `SELECT id, created_at, size FROM record_backups ORDER BY created_at DESC, id DESC`,
	textPayload: true,
}

var sqliteDialect = dialect{
	driver: DriverSQLite,
	ddl: `CREATE TABLE IF NOT EXISTS record_backups (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		size INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`,
	insert: `INSERT INTO record_backups (id, created_at, size, payload) VALUES (?, ?, ?, ?)`,
	load:   `SELECT payload FROM record_backups WHERE id = ?`,
	list:   `SELECT id, created_at, size FROM record_backups ORDER BY created_at DESC, id DESC`,
}

// SQLSink stores backups as rows of a single table.
type SQLSink struct {
	db *sql.DB
	d  dialect
}

// NewPostgresSink stores backups in Postgres through the shared pgx pool.
func NewPostgresSink(ctx context.Context, db *store.DB) (*SQLSink, error) {
	if db == nil || db.Client == nil {
		return nil, fmt.Errorf("postgres connection required")
	}
	return newSQLSink(ctx, db.Client, postgresDialect)
}

// NewSQLiteSink opens (or creates) a SQLite database file at path.
func NewSQLiteSink(ctx context.Context, path string) (*SQLSink, error) {
	if path == "" {
		path = "backups/records.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLSink(ctx, db, sqliteDialect)
}

func newSQLSink(ctx context.Context, db *sql.DB, d dialect) (*SQLSink, error) {
	if _, err := db.ExecContext(ctx, d.ddl); err != nil {
		return nil, fmt.Errorf("ensure backup table: %w", err)
	}
	return &SQLSink{db: db, d: d}, nil
}

func (s *SQLSink) Driver() string { return s.d.driver }

// Close releases the database handle.
func (s *SQLSink) Close() error { return s.db.Close() }

func (s *SQLSink) Save(ctx context.Context, info Info, payload []byte) error {
	var body any = payload
	if s.d.textPayload {
		body = string(payload)
	}
	if _, err := s.db.ExecContext(ctx, s.d.insert, info.ID, info.CreatedAt.UnixNano(), int64(len(payload)), body); err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func (s *SQLSink) Load(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.d.load, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("select backup: %w", err)
	}
	return payload, nil
}

func (s *SQLSink) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, s.d.list)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []Info{}
	for rows.Next() {
		var (
			info  Info
			nanos int64
		)
		if err := rows.Scan(&info.ID, &nanos, &info.Size); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		info.CreatedAt = time.Unix(0, nanos).UTC()
		info.Driver = s.d.driver
		out = append(out, info)
	}
	return out, rows.Err()
}
