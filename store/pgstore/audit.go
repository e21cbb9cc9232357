package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// AuditSink persists audit events into auth_audit_log. Write failures are
// logged and swallowed.
type AuditSink struct {
	db      *sql.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewAuditSink binds the sink to db. A nil logger discards write errors.
func NewAuditSink(db *sql.DB, logger *zap.Logger) *AuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditSink{db: db, logger: logger, timeout: 5 * time.Second}
}

func (s *AuditSink) Emit(ctx context.Context, event audit.Event) {
	query :=
		`INSERT INTO auth_audit_log (occurred_at, action, user_id, team_id, ip, success, error, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	var metadata []byte
	if len(event.Metadata) > 0 {
		metadata, _ = json.Marshal(event.Metadata)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp, event.Action,
		nullString(event.UserID), nullString(event.TeamID), nullString(event.IP),
		event.Success, nullString(event.Error), metadata,
	)
	if err != nil {
		s.logger.Warn("audit insert failed",
			zap.String("action", event.Action),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
