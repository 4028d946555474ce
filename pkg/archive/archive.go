package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/report"
)

// Archive is the SQLite-backed run history.
type Archive struct {
	db    *sql.DB
	mu    sync.RWMutex
	cfg   *Config
	codec *compress.Codec
}

// Open opens (creating if needed) the archive database.
func Open(cfg *Config) (*Archive, error) {
	const op = "archive.Open"
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultDatabasePath()
	}
	if cfg.Compression == "" {
		cfg.Compression = compress.AlgorithmZSTD
	}
	if cfg.CompressionLevel <= 0 {
		cfg.CompressionLevel = compress.LevelDefault
	}

	if cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, errors.E(errors.KindStorage, op, "create archive directory", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, "open database", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.E(errors.KindStorage, op, "set pragma", err)
		}
	}

	a := &Archive{db: db, cfg: cfg, codec: compress.NewCodec(cfg.Compression, cfg.CompressionLevel)}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, errors.E(errors.KindStorage, op, "init schema", err)
	}
	return a, nil
}

// initSchema creates the database tables if they don't exist.
func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source_dir TEXT NOT NULL,
		device_type TEXT NOT NULL,
		output_path TEXT NOT NULL,
		format TEXT NOT NULL,
		findings INTEGER NOT NULL DEFAULT 0,
		categories INTEGER NOT NULL DEFAULT 0,
		section_failures INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		document BLOB,
		document_size INTEGER NOT NULL DEFAULT 0,
		compression TEXT NOT NULL DEFAULT 'zstd',
		compression_ratio REAL NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		category TEXT NOT NULL,
		summary TEXT NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings(run_id);
	CREATE INDEX IF NOT EXISTS idx_findings_fingerprint ON findings(fingerprint);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	// Databases created before compression_ratio existed.
	return a.ensureColumn("runs", "compression_ratio", "REAL NOT NULL DEFAULT 1")
}

func (a *Archive) ensureColumn(table, column, decl string) error {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = a.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl)
	return err
}

// RecordRun stores a run, its document and its findings in one
// transaction. Empty ID and CreatedAt fields of run are filled in.
func (a *Archive) RecordRun(ctx context.Context, run *Run, doc *report.Document, fs []findings.Finding) error {
	const op = "archive.RecordRun"
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return errors.ErrArchiveClosed
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Compression = a.codec.Algorithm()
	run.CompressionRatio = 1

	var blob []byte
	if doc != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return errors.E(errors.KindStorage, op, "encode document", err)
		}
		packed, err := a.codec.Pack(raw)
		if err != nil {
			return errors.E(errors.KindStorage, op, "compress document", err)
		}
		blob = packed.Data
		run.DocumentSize = packed.RawSize
		run.CompressionRatio = packed.Ratio
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.E(errors.KindStorage, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, source_dir, device_type, output_path, format, findings,
			categories, section_failures, warnings, created_at, document,
			document_size, compression, compression_ratio
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.SourceDir, run.DeviceType, run.OutputPath, run.Format,
		run.Findings, run.Categories, run.SectionFailures, run.Warnings,
		run.CreatedAt.UnixMilli(), blob, run.DocumentSize, string(run.Compression),
		run.CompressionRatio,
	)
	if err != nil {
		return errors.E(errors.KindStorage, op, "insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (id, run_id, fingerprint, category, summary, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.E(errors.KindStorage, op, err)
	}
	defer stmt.Close()
	for i, f := range fs {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), run.ID, f.ID, f.Category, f.Summary(), i); err != nil {
			return errors.E(errors.KindStorage, op, "insert finding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.E(errors.KindStorage, op, err)
	}
	return nil
}

const runColumns = `id, source_dir, device_type, output_path, format, findings,
	categories, section_failures, warnings, created_at, document_size, compression,
	compression_ratio`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var createdAt int64
	var algo string
	err := row.Scan(
		&run.ID, &run.SourceDir, &run.DeviceType, &run.OutputPath, &run.Format,
		&run.Findings, &run.Categories, &run.SectionFailures, &run.Warnings,
		&createdAt, &run.DocumentSize, &algo, &run.CompressionRatio,
	)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdAt)
	run.Compression = compress.Algorithm(algo)
	return &run, nil
}

// ListRuns returns the most recent runs, newest first. A limit <= 0
// returns every run.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	const op = "archive.ListRuns"
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.ErrArchiveClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.E(errors.KindStorage, op, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindStorage, op, err)
	}
	return runs, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when no run matches.
func (a *Archive) GetRun(ctx context.Context, id string) (*Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.ErrArchiveClosed
	}

	run, err := scanRun(a.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(errors.KindStorage, "archive.GetRun", err)
	}
	return run, nil
}

// RunFindings returns the findings of a run in report order.
func (a *Archive) RunFindings(ctx context.Context, runID string) ([]FindingRecord, error) {
	const op = "archive.RunFindings"
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.ErrArchiveClosed
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, run_id, fingerprint, category, summary, position
		FROM findings WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, err)
	}
	defer rows.Close()

	var out []FindingRecord
	for rows.Next() {
		var r FindingRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Fingerprint, &r.Category, &r.Summary, &r.Position); err != nil {
			return nil, errors.E(errors.KindStorage, op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindStorage, op, err)
	}
	return out, nil
}

// LoadDocument returns the assembled document stored with a run.
func (a *Archive) LoadDocument(ctx context.Context, runID string) (*report.Document, error) {
	const op = "archive.LoadDocument"
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, errors.ErrArchiveClosed
	}

	var blob []byte
	var algo string
	err := a.db.QueryRowContext(ctx, `SELECT document, compression FROM runs WHERE id = ?`, runID).Scan(&blob, &algo)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf(errors.KindStorage, op, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, err)
	}
	if len(blob) == 0 {
		return nil, errors.Errorf(errors.KindStorage, op, "run %s has no stored document", runID)
	}

	raw, err := compress.For(compress.Algorithm(algo)).Decode(blob)
	if err != nil {
		return nil, errors.E(errors.KindStorage, op, "decompress document", err)
	}
	var doc report.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.E(errors.KindStorage, op, "decode document", err)
	}
	return &doc, nil
}

// SeenBefore reports whether a finding with the fingerprint was archived by
// a run other than excludeRun.
func (a *Archive) SeenBefore(ctx context.Context, fingerprint, excludeRun string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return false, errors.ErrArchiveClosed
	}

	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE fingerprint = ? AND run_id != ?`,
		fingerprint, excludeRun,
	).Scan(&n)
	if err != nil {
		return false, errors.E(errors.KindStorage, "archive.SeenBefore", err)
	}
	return n > 0, nil
}

// DeleteRun removes a run and its findings.
func (a *Archive) DeleteRun(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return errors.ErrArchiveClosed
	}
	if _, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return errors.E(errors.KindStorage, "archive.DeleteRun", err)
	}
	return nil
}

// Close closes the database. Further calls return ErrArchiveClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
