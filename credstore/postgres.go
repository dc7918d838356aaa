package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const pgUniqueViolation = "23505"

// Schema creates the verification_records table. Rows are never updated
// in place once inactive; a partial unique index allows exactly one active
// row per (subject, purpose).
const Schema = `
CREATE TABLE IF NOT EXISTS verification_records (
    id            TEXT PRIMARY KEY,
    subject       TEXT NOT NULL,
    purpose       TEXT NOT NULL,
    channel       TEXT NOT NULL,
    secret_hash   BYTEA NOT NULL,
    issued_at     TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ NOT NULL,
    last_sent_at  TIMESTAMPTZ NOT NULL,
    locked_until  TIMESTAMPTZ,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    resend_count  INTEGER NOT NULL DEFAULT 0,
    status        SMALLINT NOT NULL,
    row_version   BIGINT NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    retain_until  TIMESTAMPTZ NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS verification_records_active_key
    ON verification_records (subject, purpose) WHERE active;
CREATE INDEX IF NOT EXISTS verification_records_retain_until
    ON verification_records (retain_until);
`

const recordColumns = `id, subject, purpose, channel, secret_hash, issued_at, expires_at,
    last_sent_at, locked_until, attempt_count, resend_count, status, row_version`

// PostgresStore keeps verification history: superseding a record deactivates
// the old row (marking it superseded if it was still pending) and inserts a
// new one in the same transaction.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// NewPostgresStore wraps db, typically a *pgxpool.Pool.
func NewPostgresStore(db DB) *PostgresStore {
	return NewPostgresStoreWithClock(db, time.Now)
}

// NewPostgresStoreWithClock uses now for retention checks and purges, so the
// store agrees with an engine running on an injected clock.
func NewPostgresStoreWithClock(db DB, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{db: db, now: now}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetActive(ctx context.Context, subject, purpose string) (*Record, error) {
	q := `SELECT ` + recordColumns + `
        FROM verification_records
        WHERE subject = $1 AND purpose = $2 AND active AND retain_until > $3`

	rec, err := scanRecord(s.db.QueryRow(ctx, q, subject, purpose, s.now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapUnavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now().UTC()

	// Rows past their retention window no longer count as active.
	if _, err := tx.Exec(ctx, `
        UPDATE verification_records SET active = FALSE
        WHERE subject = $1 AND purpose = $2 AND active AND retain_until <= $3`,
		rec.Subject, rec.Purpose, now,
	); err != nil {
		return wrapUnavailable(err)
	}

	if err := insertRecord(ctx, tx, rec, 1, now.Add(ttl)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapUnavailable(err)
	}
	rec.Version = 1
	return nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapUnavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now().UTC()
	retainUntil := now.Add(ttl)
	next := rec.Version + 1

	var currentID string
	err = tx.QueryRow(ctx, `
        SELECT id FROM verification_records
        WHERE subject = $1 AND purpose = $2 AND active AND retain_until > $3 AND row_version = $4
        FOR UPDATE`,
		rec.Subject, rec.Purpose, now, int64(rec.Version),
	).Scan(&currentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return wrapUnavailable(err)
	}

	if currentID == rec.VerificationID {
		tag, err := tx.Exec(ctx, `
            UPDATE verification_records SET
                channel = $3, secret_hash = $4, issued_at = $5, expires_at = $6,
                last_sent_at = $7, locked_until = $8, attempt_count = $9,
                resend_count = $10, status = $11, row_version = $12, retain_until = $13
            WHERE id = $1 AND row_version = $2 AND active`,
			rec.VerificationID, int64(rec.Version),
			rec.Channel, rec.SecretHash[:], rec.IssuedAt.UTC(), rec.ExpiresAt.UTC(),
			rec.LastSentAt.UTC(), nullableTime(rec.LockedUntil), rec.AttemptCount,
			rec.ResendCount, int16(rec.Status), int64(next), retainUntil,
		)
		if err != nil {
			return wrapUnavailable(err)
		}
		if tag.RowsAffected() != 1 {
			return ErrConflict
		}
	} else {
		tag, err := tx.Exec(ctx, `
            UPDATE verification_records SET
                active = FALSE,
                status = CASE WHEN status = $3 THEN $4 ELSE status END,
                row_version = row_version + 1
            WHERE id = $1 AND row_version = $2 AND active`,
			currentID, int64(rec.Version), int16(StatusPending), int16(StatusSuperseded),
		)
		if err != nil {
			return wrapUnavailable(err)
		}
		if tag.RowsAffected() != 1 {
			return ErrConflict
		}
		if err := insertRecord(ctx, tx, rec, next, retainUntil); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapUnavailable(err)
	}
	rec.Version = next
	return nil
}

// PurgeInert deletes inactive or expired rows whose retention ended more
// than olderThan ago. It returns the number of rows removed.
func (s *PostgresStore) PurgeInert(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	tag, err := s.db.Exec(ctx, `
        DELETE FROM verification_records
        WHERE retain_until < $1 OR (NOT active AND created_at < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertRecord(ctx context.Context, db execer, rec *Record, version uint64, retainUntil time.Time) error {
	_, err := db.Exec(ctx, `
        INSERT INTO verification_records (`+recordColumns+`, active, retain_until)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, $14)`,
		rec.VerificationID, rec.Subject, rec.Purpose, rec.Channel, rec.SecretHash[:],
		rec.IssuedAt.UTC(), rec.ExpiresAt.UTC(), rec.LastSentAt.UTC(), nullableTime(rec.LockedUntil),
		rec.AttemptCount, rec.ResendCount, int16(rec.Status), int64(version), retainUntil,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return wrapUnavailable(err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		hash        []byte
		lockedUntil *time.Time
		status      int16
		version     int64
	)
	err := row.Scan(
		&rec.VerificationID, &rec.Subject, &rec.Purpose, &rec.Channel, &hash,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.LastSentAt, &lockedUntil,
		&rec.AttemptCount, &rec.ResendCount, &status, &version,
	)
	if err != nil {
		return nil, err
	}
	if len(hash) != len(rec.SecretHash) {
		return nil, errors.New("stored secret hash has unexpected length")
	}
	copy(rec.SecretHash[:], hash)
	if lockedUntil != nil {
		rec.LockedUntil = lockedUntil.UTC()
	}
	rec.IssuedAt = rec.IssuedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.LastSentAt = rec.LastSentAt.UTC()
	rec.Status = Status(status)
	rec.Version = uint64(version)
	return &rec, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
