// Package queue is the database-backed processing queue. Claims are
// leases: a crashed worker's photo becomes claimable again once its
// lease expires, so no photo is ever lost to a dead process.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clubgallery/photoflow/internal/config"
	"github.com/clubgallery/photoflow/internal/store"
)

// State is the queue-side lifecycle of one photo.
type State string

const (
	StateQueued State = "queued"
	StateLeased State = "leased"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// ErrEmpty is returned by Claim when nothing is ready for processing.
var ErrEmpty = errors.New("queue is empty")

// ErrLeaseLost is returned when a worker acts on a photo whose lease it
// no longer holds.
var ErrLeaseLost = errors.New("lease no longer held")

// Item is one queued photo.
type Item struct {
	PhotoID        string
	State          State
	Attempts       int
	LeasedBy       *string
	LeaseExpiresAt *time.Time
	NextAttemptAt  time.Time
	LastError      *string
	EnqueuedAt     time.Time
}

// Stats summarizes the queue for operators.
type Stats struct {
	Queued int
	Leased int
	Done   int
	Failed int
}

// Queue wraps the photo_queue table.
type Queue struct {
	pool        *store.Pool
	leaseTTL    time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// New creates a queue over the given pool.
func New(pool *store.Pool, cfg *config.WorkerConfig) *Queue {
	return &Queue{
		pool:        pool,
		leaseTTL:    cfg.LeaseTTL,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
	}
}

// Enqueue makes a photo claimable. Re-enqueueing an existing photo
// resets it to queued with a clean attempt counter, which is how forced
// reprocessing enters the queue.
func (q *Queue) Enqueue(ctx context.Context, photoID string) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO photo_queue (photo_id, state, next_attempt_at)
		VALUES ($1, 'queued', NOW())
		ON CONFLICT (photo_id) DO UPDATE
		SET state = 'queued', attempts = 0, leased_by = NULL, lease_expires_at = NULL,
			next_attempt_at = NOW(), last_error = NULL, updated_at = NOW()
	`, photoID)
	if err != nil {
		return fmt.Errorf("enqueue photo: %w", err)
	}
	return nil
}

// Claim leases the oldest ready photo for this worker. Ready means
// queued with its backoff elapsed, or leased with an expired lease
// (reclaimed from a dead worker). FOR UPDATE SKIP LOCKED keeps
// concurrent workers from fighting over the same row.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Item, error) {
	tx, err := q.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var item Item
	err = tx.QueryRowContext(ctx, `
		SELECT photo_id, attempts, enqueued_at
		FROM photo_queue
		WHERE (state = 'queued' AND next_attempt_at <= NOW())
		   OR (state = 'leased' AND lease_expires_at <= NOW())
		ORDER BY enqueued_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&item.PhotoID, &item.Attempts, &item.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable photo: %w", err)
	}

	expires := time.Now().Add(q.leaseTTL)
	_, err = tx.ExecContext(ctx, `
		UPDATE photo_queue
		SET state = 'leased', attempts = attempts + 1, leased_by = $2,
			lease_expires_at = $3, updated_at = NOW()
		WHERE photo_id = $1
	`, item.PhotoID, workerID, expires)
	if err != nil {
		return nil, fmt.Errorf("lease photo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	item.State = StateLeased
	item.Attempts++
	item.LeasedBy = &workerID
	item.LeaseExpiresAt = &expires
	return &item, nil
}

// ExtendLease pushes the lease expiry forward for long-running photos.
func (q *Queue) ExtendLease(ctx context.Context, photoID, workerID string) error {
	res, err := q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET lease_expires_at = $3, updated_at = NOW()
		WHERE photo_id = $1 AND leased_by = $2 AND state = 'leased'
	`, photoID, workerID, time.Now().Add(q.leaseTTL))
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete marks the photo processed.
func (q *Queue) Complete(ctx context.Context, photoID, workerID string) error {
	res, err := q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET state = 'done', leased_by = NULL, lease_expires_at = NULL,
			last_error = NULL, updated_at = NOW()
		WHERE photo_id = $1 AND leased_by = $2 AND state = 'leased'
	`, photoID, workerID)
	if err != nil {
		return fmt.Errorf("complete photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release returns a photo after a transient failure. Until the attempt
// budget runs out it goes back to queued with exponential backoff;
// after that it fails permanently. Reports whether another attempt will
// happen.
func (q *Queue) Release(ctx context.Context, photoID, workerID string, cause error) (bool, error) {
	var attempts int
	err := q.pool.QueryRow(ctx,
		"SELECT attempts FROM photo_queue WHERE photo_id = $1 AND leased_by = $2 AND state = 'leased'",
		photoID, workerID).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrLeaseLost
	}
	if err != nil {
		return false, fmt.Errorf("read attempts: %w", err)
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if attempts >= q.maxAttempts {
		_, err = q.pool.Exec(ctx, `
			UPDATE photo_queue
			SET state = 'failed', leased_by = NULL, lease_expires_at = NULL,
				last_error = $3, updated_at = NOW()
			WHERE photo_id = $1 AND leased_by = $2
		`, photoID, workerID, msg)
		if err != nil {
			return false, fmt.Errorf("fail photo: %w", err)
		}
		return false, nil
	}

	_, err = q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET state = 'queued', leased_by = NULL, lease_expires_at = NULL,
			next_attempt_at = $3, last_error = $4, updated_at = NOW()
		WHERE photo_id = $1 AND leased_by = $2
	`, photoID, workerID, time.Now().Add(q.Backoff(attempts)), msg)
	if err != nil {
		return false, fmt.Errorf("requeue photo: %w", err)
	}
	return true, nil
}

// Defer hands a leased photo back without spending its attempt, for
// failures that stall the whole queue rather than the one photo, such
// as a reference snapshot that has not loaded yet. The next try waits
// out the given delay.
func (q *Queue) Defer(ctx context.Context, photoID, workerID string, delay time.Duration) error {
	res, err := q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET state = 'queued', attempts = GREATEST(attempts - 1, 0),
			leased_by = NULL, lease_expires_at = NULL,
			next_attempt_at = $3, updated_at = NOW()
		WHERE photo_id = $1 AND leased_by = $2 AND state = 'leased'
	`, photoID, workerID, time.Now().Add(delay))
	if err != nil {
		return fmt.Errorf("defer photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Fail marks a photo permanently failed regardless of remaining
// attempts, for errors no retry can fix.
func (q *Queue) Fail(ctx context.Context, photoID, workerID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET state = 'failed', leased_by = NULL, lease_expires_at = NULL,
			last_error = $3, updated_at = NOW()
		WHERE photo_id = $1 AND leased_by = $2 AND state = 'leased'
	`, photoID, workerID, msg)
	if err != nil {
		return fmt.Errorf("fail photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Backoff computes the delay before the next attempt: the base doubled
// per completed attempt, capped at the maximum.
func (q *Queue) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := q.backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= q.backoffMax {
			return q.backoffMax
		}
	}
	if d > q.backoffMax {
		return q.backoffMax
	}
	return d
}

// Stats counts photos per queue state.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	rows, err := q.pool.Query(ctx,
		"SELECT state, COUNT(*) FROM photo_queue GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var (
			state State
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch state {
		case StateQueued:
			s.Queued = count
		case StateLeased:
			s.Leased = count
		case StateDone:
			s.Done = count
		case StateFailed:
			s.Failed = count
		}
	}
	return &s, rows.Err()
}

// RetryFailed puts every failed photo back in the queue with a fresh
// attempt budget. Returns how many were requeued.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	res, err := q.pool.Exec(ctx, `
		UPDATE photo_queue
		SET state = 'queued', attempts = 0, next_attempt_at = NOW(),
			last_error = NULL, updated_at = NOW()
		WHERE state = 'failed'
	`)
	if err != nil {
		return 0, fmt.Errorf("retry failed photos: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Cleanup deletes done queue rows older than the given age. The photo
// records themselves are untouched.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := q.pool.Exec(ctx,
		"DELETE FROM photo_queue WHERE state = 'done' AND updated_at < $1",
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
