package goSession

import "context"

func (e *Engine) emitAudit(ctx context.Context, action, userID, teamID string, success bool, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now(),
		Action:    action,
		UserID:    userID,
		TeamID:    teamID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}
