package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fileIngestor/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS files (
		id           TEXT PRIMARY KEY,
		filename     TEXT NOT NULL,
		file_size    BIGINT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'queued',
		uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		result       TEXT,
		error        TEXT
	);
	CREATE INDEX IF NOT EXISTS files_filename_idx ON files (filename);
`

const uniqueViolation = "23505"

type PostgresRepo struct {
	db *pgxpool.Pool
}

// ConnectPostgres opens a pool and verifies the connection.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "file-ingestor"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, postgresSchema)
	return err
}

func (r *PostgresRepo) Create(ctx context.Context, file *models.FileRecord) error {
	if err := validateRecord(file); err != nil {
		return err
	}

	query := `
		INSERT INTO files (id, filename, file_size, status, uploaded_at, processed_at, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		file.ID,
		file.Filename,
		file.SizeBytes,
		string(file.Status),
		file.UploadedAt,
		file.ProcessedAt,
		file.Result,
		file.Error,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrFileAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `
		SELECT id, filename, file_size, status, uploaded_at, processed_at, result, error
		FROM files
		WHERE id = $1
	`

	file, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return file, nil
}

func (r *PostgresRepo) List(ctx context.Context, offset, limit int) ([]*models.FileRecord, error) {
	query := `
		SELECT id, filename, file_size, status, uploaded_at, processed_at, result, error
		FROM files
		ORDER BY uploaded_at, id
		OFFSET $1 LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*models.FileRecord{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, id string, upd models.FileUpdate) error {
	if err := validateUpdate(id, upd); err != nil {
		return err
	}

	query := `
		UPDATE files
		SET status = $1, result = $2, error = $3, processed_at = $4
		WHERE id = $5
	`
	args := []any{string(upd.Status), upd.Result, upd.Error, upd.ProcessedAt, id}

	if len(upd.ExpectedStatuses) > 0 {
		query += ` AND status = ANY($6)`
		args = append(args, statusStrings(upd.ExpectedStatuses))
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// missOrConflict tells an absent row apart from a guard that did not match.
func (r *PostgresRepo) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM files WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrFileNotFound
	}
	return ErrStatusConflict
}

func (r *PostgresRepo) Close() error {
	r.db.Close()
	return nil
}

func scanFile(row pgx.Row) (*models.FileRecord, error) {
	var (
		file   models.FileRecord
		status string
	)
	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.SizeBytes,
		&status,
		&file.UploadedAt,
		&file.ProcessedAt,
		&file.Result,
		&file.Error,
	)
	if err != nil {
		return nil, err
	}
	file.Status = models.FileStatus(status)
	return &file, nil
}
