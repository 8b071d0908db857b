package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/eventvault/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/eventvault/internal/core/domain"
	"github.com/custodia-labs/eventvault/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.RecordStore = (*Store)(nil)

// Store is a SQLite-backed record store. The unique index on identifier is
// the arbiter for concurrent inserts racing on the same identity.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.eventvault/data/records.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".eventvault", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "records.db")

	// WAL mode for better concurrency between lookups and the bulk writer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %s: %w", name, err)
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
	}
	return nil
}

const recordColumns = `id, identifier, date, device, event_type, app, subject,
	srv_created, srv_modified, utc_offset, is_valid, is_read_only, extra_json`

// FindOne returns at most one record matching the identifying filter.
func (s *Store) FindOne(ctx context.Context, filter domain.Filter) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE identifier = ?
		   OR (device = ? AND date = ? AND event_type = ?)
		LIMIT 1
	`, filter.Identifier, filter.Device, filter.Date, filter.EventType)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return rec, nil
}

// BulkWrite applies all intents, capturing per-index errors rather than
// aborting on the first failure. Each intent is an independent statement;
// a wholesale failure is only reported when the database itself is gone.
func (s *Store) BulkWrite(ctx context.Context, intents []domain.WriteIntent) (*domain.BulkResult, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}

	res := &domain.BulkResult{
		InsertedIDs: make(map[int]string),
		UpsertedIDs: make(map[int]string),
	}

	for i, intent := range intents {
		switch intent.Op {
		case domain.OpInsert:
			s.execInsert(ctx, i, intent, res)
		case domain.OpReplace:
			s.execReplace(ctx, i, intent, res)
		default:
			res.WriteErrors = append(res.WriteErrors, domain.WriteError{
				Index:   i,
				Message: fmt.Sprintf("unknown op %q", intent.Op),
			})
		}
	}
	return res, nil
}

func (s *Store) execInsert(ctx context.Context, index int, intent domain.WriteIntent, res *domain.BulkResult) {
	rec := intent.Record
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if err := s.insertRow(ctx, rec); err != nil {
		res.WriteErrors = append(res.WriteErrors, writeError(index, err))
		return
	}
	res.InsertedIDs[index] = rec.ID
	res.InsertedCount++
}

func (s *Store) execReplace(ctx context.Context, index int, intent domain.WriteIntent, res *domain.BulkResult) {
	rec := intent.Record

	existing, err := s.FindOne(ctx, intent.Filter)
	if errors.Is(err, domain.ErrNotFound) {
		// Upsert promotion: the target vanished between classification
		// and commit.
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if err := s.insertRow(ctx, rec); err != nil {
			res.WriteErrors = append(res.WriteErrors, writeError(index, err))
			return
		}
		res.UpsertedIDs[index] = rec.ID
		res.UpsertedCount++
		return
	}
	if err != nil {
		res.WriteErrors = append(res.WriteErrors, writeError(index, err))
		return
	}

	rec.ID = existing.ID
	extraJSON, err := marshalExtra(rec.Extra)
	if err != nil {
		res.WriteErrors = append(res.WriteErrors, writeError(index, err))
		return
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE records SET
			identifier = ?, date = ?, device = ?, event_type = ?, app = ?,
			subject = ?, srv_created = ?, srv_modified = ?, utc_offset = ?,
			is_valid = ?, is_read_only = ?, extra_json = ?
		WHERE id = ?
	`, rec.Identifier, rec.Date, rec.Device, rec.EventType, rec.App,
		rec.Subject, rec.SrvCreated, rec.SrvModified, rec.UTCOffset,
		boolToInt(rec.IsValid), boolToInt(rec.IsReadOnly), extraJSON, rec.ID)
	if err != nil {
		res.WriteErrors = append(res.WriteErrors, writeError(index, err))
		return
	}
	res.MatchedCount++
	res.ReplacedCount++
}

func (s *Store) insertRow(ctx context.Context, rec domain.Record) error {
	extraJSON, err := marshalExtra(rec.Extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Identifier, rec.Date, rec.Device, rec.EventType, rec.App,
		rec.Subject, rec.SrvCreated, rec.SrvModified, rec.UTCOffset,
		boolToInt(rec.IsValid), boolToInt(rec.IsReadOnly), extraJSON)
	return err
}

// writeError classifies a statement failure. Unique-index violations map to
// the duplicate-key code so the reconciler treats them as conflicts.
func writeError(index int, err error) domain.WriteError {
	code := 0
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		code = domain.DuplicateKeyCode
	}
	return domain.WriteError{Index: index, Code: code, Message: err.Error()}
}

func scanRecord(row *sql.Row) (*domain.Record, error) {
	var rec domain.Record
	var isValid, isReadOnly int
	var extraJSON sql.NullString

	err := row.Scan(&rec.ID, &rec.Identifier, &rec.Date, &rec.Device,
		&rec.EventType, &rec.App, &rec.Subject, &rec.SrvCreated,
		&rec.SrvModified, &rec.UTCOffset, &isValid, &isReadOnly, &extraJSON)
	if err != nil {
		return nil, err
	}

	rec.IsValid = isValid != 0
	rec.IsReadOnly = isReadOnly != 0
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &rec.Extra); err != nil {
			return nil, fmt.Errorf("decoding extra fields: %w", err)
		}
	}
	return &rec, nil
}

func marshalExtra(extra map[string]any) (any, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("encoding extra fields: %w", err)
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
