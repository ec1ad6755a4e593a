package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(EventAccountRegistered, event.UserID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("provider", string(event.Provider)),
		zap.Bool("reregistered", event.Reregistered),
	)
	return nil
}

func (p *StubPublisher) PublishAccountVerified(_ context.Context, event domain.AccountVerifiedEvent) error {
	p.logEvent(EventAccountVerified, event.UserID, event.VerifiedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(EventPasswordResetRequested, event.UserID, event.RequestedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Time("expires_at", event.ExpiresAt.UTC()),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(EventPasswordReset, event.UserID, event.ResetAt)
	return nil
}

func (p *StubPublisher) PublishFederatedLogin(_ context.Context, event domain.FederatedLoginEvent) error {
	p.logEvent(EventAccountFederatedLogin, event.UserID, event.LoggedInAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("provider", string(event.Provider)),
		zap.Bool("created", event.Created),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
