package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultTxTimeout bounds a unit of work when TxOptions.Timeout is zero.
	DefaultTxTimeout = 15 * time.Second
	// DefaultMaxAttempts bounds how often a conflicting unit of work is replayed.
	DefaultMaxAttempts = 4

	retryBaseDelay = 10 * time.Millisecond
)

var (
	// ErrTxTimeout means the unit of work exceeded its budget and was rolled back.
	ErrTxTimeout = errors.New("platform/db: transaction timeout")
	// ErrSerialization means the store aborted the unit of work because of a
	// concurrent conflict or deadlock. The whole operation may be retried.
	ErrSerialization = errors.New("platform/db: serialization failure")
	// ErrUniqueViolation wraps pg unique constraint violations.
	ErrUniqueViolation = errors.New("platform/db: unique violation")
)

// TxOptions configures WithTx.
type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	// Timeout is shared by every attempt.
	Timeout time.Duration
	// MaxAttempts caps replays after serialization failures and deadlocks.
	MaxAttempts int
}

// Beginner is implemented by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ Beginner = (*pgxpool.Pool)(nil)

// WithTx executes fn within a transaction. RepeatableRead is used unless
// another level is given. The transaction is rolled back when fn fails or the
// time budget runs out; store errors are classified with Classify. When the
// store aborts the transaction with a serialization failure or deadlock, fn is
// run again on a fresh transaction until MaxAttempts or the budget is used up,
// so fn must not keep state between calls.
func WithTx(ctx context.Context, pool Beginner, opts TxOptions, fn func(context.Context, pgx.Tx) error) error {
	if opts.IsoLevel == "" {
		opts.IsoLevel = pgx.RepeatableRead
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	return Retry(ctx, opts.MaxAttempts, func(ctx context.Context) error {
		return runTx(ctx, pool, opts.IsoLevel, fn)
	})
}

func runTx(ctx context.Context, pool Beginner, iso pgx.TxIsoLevel, fn func(context.Context, pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return Classify(ctx, fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, tx); err != nil {
		return Classify(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(ctx, fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// Retry calls attempt until it succeeds, fails with anything other than
// ErrSerialization, reaches maxAttempts or ctx ends. The last error is
// returned unchanged. maxAttempts <= 0 means DefaultMaxAttempts.
func Retry(ctx context.Context, maxAttempts int, attempt func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for n := 1; ; n++ {
		err := attempt(ctx)
		if err == nil || !errors.Is(err, ErrSerialization) || n >= maxAttempts {
			return err
		}
		if waitErr := backoff(ctx, n); waitErr != nil {
			return err
		}
	}
}

// backoff sleeps a jittered, linearly growing delay before attempt n+1.
func backoff(ctx context.Context, n int) error {
	delay := time.Duration(n)*retryBaseDelay + time.Duration(rand.Int63n(int64(retryBaseDelay)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify maps timeouts and pg conflict codes onto the package sentinels while
// keeping the original error in the chain.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTxTimeout) || errors.Is(err, ErrSerialization) || errors.Is(err, ErrUniqueViolation) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTxTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		case "55P03", "57014":
			return fmt.Errorf("%w: %w", ErrTxTimeout, err)
		case "23505":
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		}
	}
	return err
}

// IsRetryable reports whether the caller may resubmit the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTxTimeout) || errors.Is(err, ErrSerialization)
}
