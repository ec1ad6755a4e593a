package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/logger"
)

// LoggingSink records OTP dispatches without delivering them. The code itself is only
// logged at debug level so production logs never carry it.
type LoggingSink struct {
	logger *zap.Logger
}

func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) SendRegistrationOTP(_ context.Context, msg port.OTPMessage) error {
	s.log("registration", msg)
	return nil
}

func (s *LoggingSink) SendPasswordResetOTP(_ context.Context, msg port.OTPMessage) error {
	s.log("password_reset", msg)
	return nil
}

func (s *LoggingSink) log(purpose string, msg port.OTPMessage) {
	fields := []zap.Field{
		zap.String("purpose", purpose),
		zap.String("email", logger.MaskEmail(msg.Email)),
		zap.Time("expires_at", msg.ExpiresAt),
	}
	s.logger.Info("otp email suppressed, smtp not configured", fields...)
	s.logger.Debug("otp code", append(fields, zap.String("code", msg.Code))...)
}

var _ port.NotificationSink = (*LoggingSink)(nil)
