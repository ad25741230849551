package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS preview_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_name TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	identifier TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	options JSONB,
	output_key TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const jobColumns = `id, status, source_type, source_name, object_key, identifier, webhook_url, options, output_key, error, created_at, updated_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure preview_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	optionsJSON, err := marshalOptions(job.Options)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO preview_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID,
		job.Status,
		job.SourceType,
		job.SourceName,
		job.ObjectKey,
		job.Identifier,
		job.WebhookURL,
		optionsJSON,
		job.OutputKey,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM preview_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}
	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE preview_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3
		 RETURNING `+jobColumns,
		status,
		time.Now().UTC(),
		id,
	)
	return s.returned(row, "update job status")
}

func (s *PostgresJobStore) Transition(ctx context.Context, id, from, status string) (domain.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE preview_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING `+jobColumns,
		status,
		time.Now().UTC(),
		id,
		from,
	)
	job, err := s.returned(row, "transition job status")
	if !errors.Is(err, ErrJobNotFound) {
		return job, err
	}

	current, ok, getErr := s.Get(ctx, id)
	if getErr != nil {
		return domain.Job{}, getErr
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return domain.Job{}, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, current.Status, from)
}

func (s *PostgresJobStore) Finish(ctx context.Context, id, status, outputKey, errMsg string) (domain.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE preview_jobs
		 SET status = $1, output_key = $2, error = $3, updated_at = $4
		 WHERE id = $5
		 RETURNING `+jobColumns,
		status,
		outputKey,
		errMsg,
		time.Now().UTC(),
		id,
	)
	return s.returned(row, "finish job")
}

func (s *PostgresJobStore) returned(row *sql.Row, op string) (domain.Job, error) {
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ErrJobNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

func scanJob(row *sql.Row) (domain.Job, error) {
	var (
		job         domain.Job
		optionsJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.SourceType,
		&job.SourceName,
		&job.ObjectKey,
		&job.Identifier,
		&job.WebhookURL,
		&optionsJSON,
		&job.OutputKey,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.Job{}, err
	}

	if len(optionsJSON) > 0 {
		var opts domain.PreviewOptions
		if err := json.Unmarshal(optionsJSON, &opts); err != nil {
			return domain.Job{}, fmt.Errorf("unmarshal job options: %w", err)
		}
		job.Options = &opts
	}
	return job, nil
}

func marshalOptions(opts *domain.PreviewOptions) ([]byte, error) {
	if opts == nil {
		return nil, nil
	}
	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal job options: %w", err)
	}
	return body, nil
}
