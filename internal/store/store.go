// Package store persists extraction results in a local SQLite database so
// that a batch or watch run can be queried afterwards.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"invoicelayout/internal/logger"
	"invoicelayout/internal/store/migrations"
	"invoicelayout/pkg/models"
)

var (
	// ErrNotFound is returned when no document is stored under a path.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when an invoice id is already stored for
	// another document.
	ErrDuplicateID = errors.New("invoice id belongs to another document")
)

// Document is the stored summary of one processed PDF.
type Document struct {
	Path        string
	Filename    string
	PageCount   int
	Duration    time.Duration
	ProcessedAt time.Time
}

// Store is a SQLite database of documents and their virtual invoices.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates or opens results.db in dataDir. An empty dataDir means
// ~/.invoicelayout/data.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".invoicelayout", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "results.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath, log: logger.WithComponent("store")}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	s.log.Debug().Str("path", dbPath).Msg("Result store opened")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
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
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save replaces everything stored for doc.Path with the given invoices.
func (s *Store) Save(ctx context.Context, doc Document, invoices []models.VirtualInvoiceResult) error {
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}
	if doc.Filename == "" {
		doc.Filename = filepath.Base(doc.Path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE document_path = ?`, doc.Path); err != nil {
		return fmt.Errorf("clearing invoices: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, filename, page_count, duration_ms, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			page_count = excluded.page_count,
			duration_ms = excluded.duration_ms,
			processed_at = excluded.processed_at
	`, doc.Path, doc.Filename, doc.PageCount, doc.Duration.Milliseconds(), doc.ProcessedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	for _, inv := range invoices {
		payload, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("marshalling invoice %s: %w", inv.ID, err)
		}
		var number sql.NullString
		var total sql.NullFloat64
		if inv.Header != nil {
			number = sql.NullString{String: inv.Header.InvoiceNumber, Valid: inv.Header.InvoiceNumber != ""}
			if inv.Header.TotalAmount != nil {
				total = sql.NullFloat64{Float64: *inv.Header.TotalAmount, Valid: true}
			}
		}
		// The document's own rows were deleted above, so any row left under
		// this id belongs to a different document.
		var owner string
		err = tx.QueryRowContext(ctx, `SELECT document_path FROM invoices WHERE id = ?`, inv.ID).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s is stored for %s", ErrDuplicateID, inv.ID, owner)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking invoice %s: %w", inv.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (id, document_path, idx, page_start, page_end, status, invoice_number, total_amount, result)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, inv.ID, doc.Path, inv.Index, inv.PageStart, inv.PageEnd, string(inv.Status), number, total, string(payload))
		if err != nil {
			return fmt.Errorf("saving invoice %s: %w", inv.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug().
		Str("file", doc.Path).
		Int("invoices", len(invoices)).
		Msg("Stored document results")
	return nil
}

// Document returns the stored summary for path.
func (s *Store) Document(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, filename, page_count, duration_ms, processed_at
		FROM documents WHERE path = ?
	`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Documents lists stored documents, most recently processed first.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, filename, page_count, duration_ms, processed_at
		FROM documents ORDER BY processed_at DESC, path
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Invoices returns the invoices of one document in file order.
func (s *Store) Invoices(ctx context.Context, path string) ([]models.VirtualInvoiceResult, error) {
	if _, err := s.Document(ctx, path); err != nil {
		return nil, err
	}
	return s.queryInvoices(ctx, `SELECT result FROM invoices WHERE document_path = ? ORDER BY idx`, path)
}

// ByStatus returns every stored invoice with the given status.
func (s *Store) ByStatus(ctx context.Context, status models.Status) ([]models.VirtualInvoiceResult, error) {
	return s.queryInvoices(ctx, `SELECT result FROM invoices WHERE status = ? ORDER BY document_path, idx`, string(status))
}

func (s *Store) queryInvoices(ctx context.Context, query string, arg any) ([]models.VirtualInvoiceResult, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying invoices: %w", err)
	}
	defer rows.Close()

	var out []models.VirtualInvoiceResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		var inv models.VirtualInvoiceResult
		if err := json.Unmarshal([]byte(payload), &inv); err != nil {
			return nil, fmt.Errorf("unmarshalling invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var durationMS int64
	var processedAt sql.NullTime
	if err := row.Scan(&doc.Path, &doc.Filename, &doc.PageCount, &durationMS, &processedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Duration = time.Duration(durationMS) * time.Millisecond
	if processedAt.Valid {
		doc.ProcessedAt = processedAt.Time
	}
	return &doc, nil
}
