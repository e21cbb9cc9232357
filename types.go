package goSession

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// TokenPair is the result of a login or a successful refresh. The HTTP layer
// writes both tokens to cookies.
type TokenPair struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// ProbeResult describes a refresh token that is currently usable.
type ProbeResult struct {
	UserID    string
	RecordID  string
	ExpiresAt time.Time
}

// Session is one active refresh record as exposed to callers. Token hashes
// never leave the engine.
type Session struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserRecord is the read-only view of a user returned by a UserDirectory.
type UserRecord struct {
	ID          string
	TeamID      string
	DisplayName string
}

// UserDirectory resolves users and their team. The engine only uses it to
// enrich audit events; lookup failures never fail an operation.
type UserDirectory interface {
	GetUserWithTeam(ctx context.Context, userID string) (UserRecord, error)
}

// Authenticator verifies a credential and returns the user id it belongs to.
// Implementations return ErrInvalidCredentials for unknown users and wrong
// passwords alike.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (string, error)
}

// AuditEvent is the audit record emitted for session lifecycle actions.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans each event out to every sink in order.
type MultiSink = internalaudit.MultiSink

// Audit action tags.
const (
	AuditActionLogin        = internalaudit.ActionLogin
	AuditActionLoginFailure = internalaudit.ActionLoginFailure
	AuditActionLogout       = internalaudit.ActionLogout
	AuditActionRevoke       = internalaudit.ActionRevoke
	AuditActionRefreshReuse = internalaudit.ActionRefreshReuse
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapAuditSink logs audit events through logger.
func NewZapAuditSink(logger *zap.Logger) AuditSink {
	return internalaudit.NewZapSink(logger)
}
