// Package activity implements best-effort audit logging. Recording an
// action must never break the action itself: remote failures are logged
// and the entry is kept in the local fallback table instead.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cierreops/cierre-cli/internal/model"
)

// Remote is the backend call that records activity server-side.
type Remote interface {
	LogActivity(ctx context.Context, entry model.ActivityEntry) error
}

// Fallback persists entries the backend did not accept.
type Fallback interface {
	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
}

// Logger records user actions against the backend, falling back to local
// storage. Every method swallows errors.
type Logger struct {
	remote   Remote
	fallback Fallback
	clientID string
	log      *zap.Logger
}

// NewLogger creates an activity logger for one client. fallback may be nil.
func NewLogger(remote Remote, fallback Fallback, clientID string) *Logger {
	return &Logger{
		remote:   remote,
		fallback: fallback,
		clientID: clientID,
		log:      zap.L().With(zap.String("component", "activity")),
	}
}

// Record sends one entry to the backend. On failure the entry lands in the
// local fallback log; the caller never sees an error either way.
func (l *Logger) Record(ctx context.Context, category, action, description, detail, cierreID string) {
	entry := model.ActivityEntry{
		ID:          uuid.New().String(),
		ClientID:    l.clientID,
		Category:    category,
		Action:      action,
		Description: description,
		Detail:      detail,
		CierreID:    cierreID,
		CreatedAt:   time.Now().UTC(),
	}

	err := l.remote.LogActivity(ctx, entry)
	if err == nil {
		return
	}
	l.log.Warn("remote activity log failed",
		zap.String("category", category),
		zap.String("action", action),
		zap.Error(err),
	)

	if l.fallback == nil {
		return
	}
	if err := l.fallback.AppendActivity(ctx, entry); err != nil {
		l.log.Warn("local activity fallback failed", zap.Error(err))
	}
}

// Go records in the background, detached from the caller's deadline. Used
// inside poll side effects where blocking on the audit call is not
// acceptable.
func (l *Logger) Go(category, action, description, detail, cierreID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Record(ctx, category, action, description, detail, cierreID)
	}()
}
