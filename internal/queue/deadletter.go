// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/database/schema"
	"github.com/taibuivan/rensai/internal/platform/dberr"
	"github.com/taibuivan/rensai/pkg/uuidv7"
)

// # Dead Letters

// DeadLetter is a job that exhausted its handling options, persisted for
// operator inspection. Dead letters survive Redis restarts; they live in
// Postgres.
type DeadLetter struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	ErrorClass     string          `json:"error_class"`
	LastError      string          `json:"last_error"`
	Attempts       int             `json:"attempts"`

	// History is every failed execution in order, oldest first. The final
	// entry matches ErrorClass and LastError.
	History []AttemptRecord `json:"history"`

	CreatedAt time.Time `json:"created_at"`
}

// DeadLetterStore defines the persistence contract for dead letters.
type DeadLetterStore interface {

	/*
		Record persists one dead letter.
	*/
	Record(context context.Context, letter *DeadLetter) error

	/*
		ListRecent returns the newest dead letters, for the operational
		surface.
	*/
	ListRecent(context context.Context, limit int) ([]*DeadLetter, error)

	/*
		Count returns the total dead-letter backlog.
	*/
	Count(context context.Context) (int, error)
}

// deadLetterStore implements [DeadLetterStore] using pgx.
type deadLetterStore struct {
	pool *pgxpool.Pool
}

// NewDeadLetterStore constructs a PostgreSQL backed dead-letter store.
func NewDeadLetterStore(pool *pgxpool.Pool) DeadLetterStore {
	return &deadLetterStore{pool: pool}
}

/*
Record persists one dead letter.
*/
func (store *deadLetterStore) Record(context context.Context, letter *DeadLetter) error {
	history, err := json.Marshal(letter.History)
	if err != nil {
		return apperr.Internal(fmt.Errorf("queue: marshal attempt history: %w", err))
	}

	dl := schema.SyncDeadLetter
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, dl.Table, dl.ID, dl.IdempotencyKey, dl.Payload, dl.ErrorClass, dl.LastError, dl.Attempts, dl.History)

	_, err = store.pool.Exec(context, query,
		uuidv7.New(),
		letter.IdempotencyKey,
		letter.Payload,
		letter.ErrorClass,
		letter.LastError,
		letter.Attempts,
		history,
	)
	if err != nil {
		return dberr.Wrap(err, "dead letter record")
	}

	return nil
}

/*
ListRecent returns the newest dead letters.
*/
func (store *deadLetterStore) ListRecent(context context.Context, limit int) ([]*DeadLetter, error) {
	dl := schema.SyncDeadLetter
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		ORDER BY %s DESC
		LIMIT $1
	`, dl.ID, dl.IdempotencyKey, dl.Payload, dl.ErrorClass, dl.LastError, dl.Attempts, dl.History, dl.CreatedAt,
		dl.Table, dl.CreatedAt)

	rows, err := store.pool.Query(context, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*DeadLetter
	for rows.Next() {
		var letter DeadLetter
		var history []byte
		err := rows.Scan(
			&letter.ID,
			&letter.IdempotencyKey,
			&letter.Payload,
			&letter.ErrorClass,
			&letter.LastError,
			&letter.Attempts,
			&history,
			&letter.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal(history, &letter.History); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode attempt history: %w", err)
		}
		letters = append(letters, &letter)
	}

	return letters, rows.Err()
}

/*
Count returns the total dead-letter backlog.
*/
func (store *deadLetterStore) Count(context context.Context) (int, error) {
	dl := schema.SyncDeadLetter
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, dl.Table)

	var count int
	if err := store.pool.QueryRow(context, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: failed to count dead letters: %w", err)
	}

	return count, nil
}

// newDeadLetter builds the persisted form of a failed lease.
func newDeadLetter(lease *Lease, cause error) *DeadLetter {
	payload, err := json.Marshal(lease.Job)
	if err != nil {
		// Job is a plain struct; marshalling cannot realistically fail.
		payload = []byte("{}")
	}

	return &DeadLetter{
		IdempotencyKey: lease.Job.Key,
		Payload:        payload,
		ErrorClass:     string(apperr.Classify(cause)),
		LastError:      cause.Error(),
		Attempts:       lease.Job.Attempt + 1,
		History:        lease.Job.History,
	}
}
