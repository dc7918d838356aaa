package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgconn"
	"github.com/sirupsen/logrus"
)

// Execer is the subset of *pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PostgresSchema creates the append-only audit table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS verification_audit_events (
    id              BIGSERIAL PRIMARY KEY,
    occurred_at     TIMESTAMPTZ NOT NULL,
    event_type      TEXT NOT NULL,
    subject         TEXT NOT NULL DEFAULT '',
    purpose         TEXT NOT NULL DEFAULT '',
    verification_id TEXT NOT NULL DEFAULT '',
    ip              TEXT NOT NULL DEFAULT '',
    caller_id       TEXT NOT NULL DEFAULT '',
    success         BOOLEAN NOT NULL,
    error_code      TEXT NOT NULL DEFAULT '',
    metadata        JSONB
);
CREATE INDEX IF NOT EXISTS verification_audit_events_subject
    ON verification_audit_events (subject, purpose, occurred_at);
`

// PostgresSink inserts each event as a row. Insert failures are logged and
// the event is lost; audit delivery never blocks a verification decision.
type PostgresSink struct {
	db     Execer
	logger logrus.FieldLogger
}

// NewPostgresSink wraps db. A nil logger uses logrus.StandardLogger().
func NewPostgresSink(db Execer, logger logrus.FieldLogger) *PostgresSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PostgresSink{db: db, logger: logger}
}

// Migrate applies PostgresSchema.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, PostgresSchema)
	return err
}

func (s *PostgresSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.db == nil {
		return
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err == nil {
			metadata = encoded
		}
	}

	_, err := s.db.Exec(ctx, `
        INSERT INTO verification_audit_events
            (occurred_at, event_type, subject, purpose, verification_id, ip, caller_id, success, error_code, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Timestamp.UTC(), event.EventType, event.Subject, event.Purpose, event.VerificationID,
		event.IP, event.CallerID, event.Success, event.Error, metadata,
	)
	if err != nil {
		s.logger.WithError(err).WithField("event", event.EventType).Error("failed to persist audit event")
	}
}
