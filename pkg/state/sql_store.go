package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect selects placeholder style and driver specifics.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultTable is the snapshot table used when none is configured.
const DefaultTable = "domain_snapshots"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps snapshots in one table, the payload as JSON text.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithTable overrides DefaultTable.
func WithTable(name string) SQLOption {
	return func(s *SQLStore) {
		s.table = strings.TrimSpace(name)
	}
}

// WithStoreClock overrides the clock used for Meta.UpdatedAt.
func WithStoreClock(now func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLStore wraps an open database and creates the snapshot table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts ...SQLOption) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("state: sql store requires a database")
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("state: unsupported dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect, table: DefaultTable, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if !tableName.MatchString(s.table) {
		return nil, fmt.Errorf("state: invalid table name %q", s.table)
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens a modernc sqlite database at path (":memory:" works) and
// wraps it. The pool is limited to one connection so an in-memory database
// is shared by every call.
func OpenSQLite(ctx context.Context, path string, opts ...SQLOption) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "domain.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store, err := NewSQLStore(ctx, db, DialectSQLite, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenPostgres opens a postgres database through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string, opts ...SQLOption) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewSQLStore(ctx, db, DialectPostgres, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying database.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ensureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		ref TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		snapshot_id TEXT NOT NULL,
		etag TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		extra TEXT
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// bind rewrites "?" placeholders for the dialect.
func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Load(ctx context.Context, ref Ref) ([]byte, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT payload, snapshot_id, etag, updated_at, extra FROM `+s.table+` WHERE ref = ?`), key)
	payload, meta, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Meta{}, false, nil
	}
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: load %s: %w", key, err)
	}
	return payload, meta, true, nil
}

func (s *SQLStore) Save(ctx context.Context, ref Ref, payload []byte, meta Meta) (saved Meta, retErr error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.currentMeta(ctx, tx, key)
	if err != nil {
		return Meta{}, err
	}
	if err := checkETag(meta.ETag, current.ETag); err != nil {
		return Meta{}, err
	}
	saved = nextMeta(current, meta, payload, s.now())
	extra, err := encodeExtra(saved.Extra)
	if err != nil {
		return Meta{}, err
	}
	upsert := `INSERT INTO ` + s.table + ` (ref, payload, snapshot_id, etag, updated_at, extra)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ref) DO UPDATE SET
			payload = excluded.payload,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			updated_at = excluded.updated_at,
			extra = excluded.extra`
	if _, err := tx.ExecContext(ctx, s.bind(upsert), key, string(payload), saved.SnapshotID, saved.ETag, saved.UpdatedAt.Format(time.RFC3339Nano), extra); err != nil {
		return Meta{}, fmt.Errorf("state: save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("state: commit %s: %w", key, err)
	}
	return cloneMeta(saved), nil
}

func (s *SQLStore) Delete(ctx context.Context, ref Ref, meta Meta) (retErr error) {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.currentMeta(ctx, tx, key)
	if err != nil {
		return err
	}
	if current.SnapshotID == "" {
		return ErrNotFound
	}
	if err := checkETag(meta.ETag, current.ETag); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM `+s.table+` WHERE ref = ?`), key); err != nil {
		return fmt.Errorf("state: delete %s: %w", key, err)
	}
	return tx.Commit()
}

// currentMeta reads the stored meta inside tx; a missing row yields Meta{}.
func (s *SQLStore) currentMeta(ctx context.Context, tx *sql.Tx, key string) (Meta, error) {
	query := `SELECT payload, snapshot_id, etag, updated_at, extra FROM ` + s.table + ` WHERE ref = ?`
	if s.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	_, meta, err := scanSnapshot(tx.QueryRowContext(ctx, s.bind(query), key))
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("state: read %s: %w", key, err)
	}
	return meta, nil
}

func scanSnapshot(row *sql.Row) ([]byte, Meta, error) {
	var (
		payload   string
		meta      Meta
		updatedAt string
		extra     sql.NullString
	)
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &updatedAt, &extra); err != nil {
		return nil, Meta{}, err
	}
	if updatedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("decode updated_at: %w", err)
		}
		meta.UpdatedAt = parsed
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &meta.Extra); err != nil {
			return nil, Meta{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	return []byte(payload), meta, nil
}

func encodeExtra(extra map[string]string) (sql.NullString, error) {
	if len(extra) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode extra: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
