package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/library-system/auth-service/internal/events"
)

// AuditService writes session events to the security log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu     sync.Mutex
	counts map[events.EventType]int
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		counts:     make(map[events.EventType]int),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.handleInfo)
	a.dispatcher.Subscribe(events.EventRefreshRotated, a.handleDebug)
	a.dispatcher.Subscribe(events.EventLoggedOut, a.handleInfo)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleWarn)
	a.dispatcher.Subscribe(events.EventRefreshRejected, a.handleWarn)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.handleWarn)
	a.dispatcher.Subscribe(events.EventRefreshReuseDetected, a.handleReuse)
}

// Count reports how many events of the given type were audited.
func (a *AuditService) Count(eventType events.EventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[eventType]
}

func (a *AuditService) handleInfo(_ context.Context, event events.Event) error {
	a.record(event)
	a.logger.Info(string(event.Type), a.fields(event)...)
	return nil
}

func (a *AuditService) handleDebug(_ context.Context, event events.Event) error {
	a.record(event)
	a.logger.Debug(string(event.Type), a.fields(event)...)
	return nil
}

func (a *AuditService) handleWarn(_ context.Context, event events.Event) error {
	a.record(event)
	a.logger.Warn(string(event.Type), a.fields(event)...)
	return nil
}

func (a *AuditService) handleReuse(_ context.Context, event events.Event) error {
	a.record(event)
	a.logger.Error("refresh token replayed; session revoked", a.fields(event)...)
	return nil
}

func (a *AuditService) record(event events.Event) {
	a.mu.Lock()
	a.counts[event.Type]++
	a.mu.Unlock()
}

func (a *AuditService) fields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("username", event.Username),
		zap.Time("at", event.Timestamp),
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	return fields
}
