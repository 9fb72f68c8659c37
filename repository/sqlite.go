package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fileIngestor/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS files (
		id           TEXT PRIMARY KEY,
		filename     TEXT NOT NULL,
		file_size    INTEGER NOT NULL,
		status       TEXT NOT NULL DEFAULT 'queued',
		uploaded_at  TEXT NOT NULL,
		processed_at TEXT,
		result       TEXT,
		error        TEXT
	);
	CREATE INDEX IF NOT EXISTS files_filename_idx ON files (filename);
`

// Fixed-width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepo stores records in a single SQLite database file. Timestamps are
// kept as RFC 3339 text in UTC.
type SQLiteRepo struct {
	db *sql.DB
}

// OpenSQLite opens the database at dsn with a single connection. The api and
// worker processes may share one file, so writers wait on the lock instead of
// failing with SQLITE_BUSY.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	return db, nil
}

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

func (r *SQLiteRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (r *SQLiteRepo) Create(ctx context.Context, file *models.FileRecord) error {
	if err := validateRecord(file); err != nil {
		return err
	}

	query := `
		INSERT INTO files (id, filename, file_size, status, uploaded_at, processed_at, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.Filename,
		file.SizeBytes,
		string(file.Status),
		formatTime(file.UploadedAt),
		formatTimePtr(file.ProcessedAt),
		nullString(file.Result),
		nullString(file.Error),
	)
	if err != nil {
		var sqErr *sqlite.Error
		if errors.As(err, &sqErr) && sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return ErrFileAlreadyExists
		}
		return err
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `
		SELECT id, filename, file_size, status, uploaded_at, processed_at, result, error
		FROM files
		WHERE id = ?
	`

	file, err := scanSQLiteFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return file, nil
}

func (r *SQLiteRepo) List(ctx context.Context, offset, limit int) ([]*models.FileRecord, error) {
	query := `
		SELECT id, filename, file_size, status, uploaded_at, processed_at, result, error
		FROM files
		ORDER BY uploaded_at, id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*models.FileRecord{}
	for rows.Next() {
		file, err := scanSQLiteFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (r *SQLiteRepo) Update(ctx context.Context, id string, upd models.FileUpdate) error {
	if err := validateUpdate(id, upd); err != nil {
		return err
	}

	query := `UPDATE files SET status = ?, result = ?, error = ?, processed_at = ? WHERE id = ?`
	args := []any{
		string(upd.Status),
		nullString(upd.Result),
		nullString(upd.Error),
		formatTimePtr(upd.ProcessedAt),
		id,
	}

	if n := len(upd.ExpectedStatuses); n > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", n-1) + `)`
		for _, s := range statusStrings(upd.ExpectedStatuses) {
			args = append(args, s)
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrFileNotFound
	}
	return ErrStatusConflict
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFile(row sqlScanner) (*models.FileRecord, error) {
	var (
		file        models.FileRecord
		status      string
		uploadedAt  string
		processedAt sql.NullString
		result      sql.NullString
		errMsg      sql.NullString
	)
	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.SizeBytes,
		&status,
		&uploadedAt,
		&processedAt,
		&result,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	file.Status = models.FileStatus(status)
	if file.UploadedAt, err = time.Parse(sqliteTimeLayout, uploadedAt); err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	if processedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, processedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		file.ProcessedAt = &t
	}
	if result.Valid {
		file.Result = &result.String
	}
	if errMsg.Valid {
		file.Error = &errMsg.String
	}
	return &file, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
