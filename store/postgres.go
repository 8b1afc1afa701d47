package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

// Postgres is a pgx-backed implementation of PipelineStorage,
// CredentialStorage and RecipientDirectory. Query errors other than
// pgx.ErrNoRows are retried with a short exponential backoff, up to three
// retries; errors are not classified as transient or permanent beyond
// that. A no-rows result is returned to the caller immediately.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// retryPolicy bounds how long a single query attempt may spend retrying a
// transient connection error before giving up and surfacing it.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return backoff.WithMaxRetries(b, 3)
}

func isRetryable(err error) bool {
	return err != nil && err != pgx.ErrNoRows
}

// PipelinesFor implements interfaces.PipelineStorage.
func (p *Postgres) PipelinesFor(ctx context.Context, projectID, eventName string) ([]pipeline.Pipeline, error) {
	var pipelines []pipeline.Pipeline

	op := func() error {
		rows, err := p.pool.Query(ctx,
			`SELECT id, project_id, event_name, channel, steps FROM pipelines WHERE project_id = $1 AND event_name = $2`,
			projectID, eventName,
		)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer rows.Close()

		pipelines = nil
		for rows.Next() {
			var pl pipeline.Pipeline
			var stepsRaw []byte
			if err := rows.Scan(&pl.ID, &pl.ProjectID, &pl.EventName, &pl.Channel, &stepsRaw); err != nil {
				return backoff.Permanent(err)
			}
			if err := json.Unmarshal(stepsRaw, &pl.Steps); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding steps for pipeline %s: %w", pl.ID, err))
			}
			pipelines = append(pipelines, pl)
		}
		return rows.Err()
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return nil, fmt.Errorf("store: querying pipelines: %w", err)
	}
	return pipelines, nil
}

// Credential implements interfaces.CredentialStorage.
func (p *Postgres) Credential(ctx context.Context, projectID, credentialID string) (credential.Credential, error) {
	var c credential.Credential

	op := func() error {
		row := p.pool.QueryRow(ctx,
			`SELECT id, project_id, type, data FROM credentials WHERE project_id = $1 AND id = $2`,
			projectID, credentialID,
		)
		err := row.Scan(&c.ID, &c.ProjectID, &c.Type, &c.Data)
		if err == pgx.ErrNoRows {
			return backoff.Permanent(fmt.Errorf("credential %q not found for project %q", credentialID, projectID))
		}
		if err != nil && isRetryable(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return credential.Credential{}, fmt.Errorf("store: querying credential: %w", err)
	}
	return c, nil
}

// Recipient implements interfaces.RecipientDirectory.
func (p *Postgres) Recipient(ctx context.Context, projectID, recipientID string) (recipient.Recipient, error) {
	var r recipient.Recipient
	var contactsRaw []byte

	op := func() error {
		row := p.pool.QueryRow(ctx,
			`SELECT id, contacts FROM recipients WHERE project_id = $1 AND id = $2`,
			projectID, recipientID,
		)
		err := row.Scan(&r.ID, &contactsRaw)
		if err == pgx.ErrNoRows {
			return backoff.Permanent(fmt.Errorf("recipient %q not found for project %q", recipientID, projectID))
		}
		if err != nil && isRetryable(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, retryPolicy()); err != nil {
		return recipient.Recipient{}, fmt.Errorf("store: querying recipient: %w", err)
	}
	if err := json.Unmarshal(contactsRaw, &r.Contacts); err != nil {
		return recipient.Recipient{}, fmt.Errorf("store: decoding contacts for recipient %s: %w", r.ID, err)
	}
	return r, nil
}

// PostgresRecorder persists pipeline and message outcomes to Postgres.
// Each write is a synchronous INSERT; a failed write is dropped: its error
// is discarded, neither returned nor logged, matching the Recorder contract
// that has no error return.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder wraps an already-connected pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// RecordPipelineResult implements interfaces.Recorder.
func (r *PostgresRecorder) RecordPipelineResult(ctx context.Context, eventID, notificationID, pipelineID string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	_, _ = r.pool.Exec(ctx,
		`INSERT INTO pipeline_results (event_id, notification_id, pipeline_id, error, recorded_at) VALUES ($1, $2, $3, NULLIF($4, ''), now())`,
		eventID, notificationID, pipelineID, errMsg,
	)
}

// RecordMessageResult implements interfaces.Recorder.
func (r *PostgresRecorder) RecordMessageResult(ctx context.Context, eventID, notificationID, messageID, channel string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	_, _ = r.pool.Exec(ctx,
		`INSERT INTO message_results (event_id, notification_id, message_id, channel, error, recorded_at) VALUES ($1, $2, $3, $4, NULLIF($5, ''), now())`,
		eventID, notificationID, messageID, channel, errMsg,
	)
}
