package port

import (
	"context"
	"time"
)

// OTPMessage is the content of a one-time code e-mail.
type OTPMessage struct {
	Email     string
	Name      string
	Code      string
	ExpiresAt time.Time
}

// NotificationSink delivers one-time codes out of band.
type NotificationSink interface {
	SendRegistrationOTP(ctx context.Context, msg OTPMessage) error
	SendPasswordResetOTP(ctx context.Context, msg OTPMessage) error
}

// NotificationDispatcher hands messages to a sink without waiting for delivery.
// Enqueue failures are reported to the operational log, never to the caller.
type NotificationDispatcher interface {
	DispatchRegistrationOTP(msg OTPMessage)
	DispatchPasswordResetOTP(msg OTPMessage)
}
