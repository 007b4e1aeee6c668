// Package store persists imports and their decoded measurements in
// SQLite. It is the persistence collaborator of the ingestion pipeline:
// the pipeline only ever asks it to read source bytes, write a whole
// measurement batch, and move an import's status.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an import, or its source bytes, do not
// exist.
var ErrNotFound = errors.New("store: not found")

// ImportStatus is the review state of a drive-log import.
type ImportStatus string

const (
	StatusUploaded  ImportStatus = "uploaded"
	StatusProcessed ImportStatus = "processed"
	StatusSubmitted ImportStatus = "submitted"
	StatusApproved  ImportStatus = "approved"
	StatusRejected  ImportStatus = "rejected"
)

// Import is one uploaded drive log and its review state.
type Import struct {
	ID                int64        `json:"id"`
	Source            string       `json:"source"`
	Status            ImportStatus `json:"status"`
	MeasurementsCount int          `json:"measurements_count"`
	MaxCPM            int          `json:"max_cpm"`
	UploadedBy        string       `json:"uploaded_by,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	ApprovedAt        *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy        string       `json:"approved_by,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS bgeigie_imports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'uploaded',
	measurements_count INTEGER NOT NULL DEFAULT 0,
	max_cpm INTEGER NOT NULL DEFAULT 0,
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	approved_at TIMESTAMP,
	approved_by TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	import_id INTEGER NOT NULL REFERENCES bgeigie_imports(id),
	device_id INTEGER NOT NULL,
	captured_at TIMESTAMP NOT NULL,
	cpm INTEGER NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	altitude_m REAL
);

CREATE INDEX IF NOT EXISTS idx_measurements_import_id ON measurements(import_id);
`

// Store wraps the SQLite connection and the on-disk upload directory.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens (creating if needed) the database at path and ensures the
// schema. Uploaded log files live under dataDir.
func Open(path, dataDir string) (*Store, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; the job queue serializes
	// batch writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, dataDir: dataDir}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateImport stores the raw log bytes on disk and creates the import
// row in status uploaded.
func (s *Store) CreateImport(ctx context.Context, filename, uploadedBy string, content []byte) (Import, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bgeigie_imports (source, status, uploaded_by, created_at) VALUES (?, ?, ?, ?)`,
		filename, StatusUploaded, uploadedBy, now)
	if err != nil {
		return Import{}, fmt.Errorf("insert import: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Import{}, fmt.Errorf("import id: %w", err)
	}

	source := fmt.Sprintf("%d_%s", id, filepath.Base(filename))
	if err := os.WriteFile(filepath.Join(s.dataDir, source), content, 0o644); err != nil {
		return Import{}, fmt.Errorf("write source file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE bgeigie_imports SET source = ? WHERE id = ?`, source, id); err != nil {
		return Import{}, fmt.Errorf("update source: %w", err)
	}

	return s.Import(ctx, id)
}

// Import returns one import by id, or ErrNotFound.
func (s *Store) Import(ctx context.Context, id int64) (Import, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, measurements_count, max_cpm, uploaded_by, created_at, approved_at, approved_by
		 FROM bgeigie_imports WHERE id = ?`, id)
	return scanImport(row)
}

// Imports lists imports newest first.
func (s *Store) Imports(ctx context.Context, limit, offset int) ([]Import, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, measurements_count, max_cpm, uploaded_by, created_at, approved_at, approved_by
		 FROM bgeigie_imports ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	imports := make([]Import, 0, limit)
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// SourceBytes reads the raw log bytes for an import. A missing row or a
// missing file both report ErrNotFound.
func (s *Store) SourceBytes(ctx context.Context, id int64) ([]byte, error) {
	imp, err := s.Import(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.dataDir, imp.Source))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("source file %s: %w", imp.Source, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	return b, nil
}

// SetImportStatus moves an import to a new status. Approval stamps the
// approval time and actor.
func (s *Store) SetImportStatus(ctx context.Context, id int64, status ImportStatus, actor string) error {
	var (
		res sql.Result
		err error
	)
	if status == StatusApproved {
		res, err = s.db.ExecContext(ctx,
			`UPDATE bgeigie_imports SET status = ?, approved_at = ?, approved_by = ? WHERE id = ?`,
			status, time.Now().UTC(), actor, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE bgeigie_imports SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("set import status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set import status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(row rowScanner) (Import, error) {
	var (
		imp        Import
		approvedAt sql.NullTime
	)
	err := row.Scan(&imp.ID, &imp.Source, &imp.Status, &imp.MeasurementsCount,
		&imp.MaxCPM, &imp.UploadedBy, &imp.CreatedAt, &approvedAt, &imp.ApprovedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, ErrNotFound
	}
	if err != nil {
		return Import{}, fmt.Errorf("scan import: %w", err)
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		imp.ApprovedAt = &t
	}
	return imp, nil
}
