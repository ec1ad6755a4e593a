package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/logger"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 100
	sendTimeout      = 30 * time.Second
)

type jobKind string

const (
	jobRegistration  jobKind = "registration"
	jobPasswordReset jobKind = "password_reset"
)

type job struct {
	kind jobKind
	msg  port.OTPMessage
}

// AsyncDispatcher queues OTP messages on a buffered channel drained by worker goroutines.
// A full queue or a failed send is logged and otherwise ignored.
type AsyncDispatcher struct {
	sink    port.NotificationSink
	logger  *zap.Logger
	workers int
	queue   chan job

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewAsyncDispatcher(sink port.NotificationSink, workers, queueSize int, logger *zap.Logger) *AsyncDispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &AsyncDispatcher{
		sink:    sink,
		logger:  logger,
		workers: workers,
		queue:   make(chan job, queueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *AsyncDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to expire.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification queue not drained"), ctx.Err())
	}
}

func (d *AsyncDispatcher) DispatchRegistrationOTP(msg port.OTPMessage) {
	d.enqueue(job{kind: jobRegistration, msg: msg})
}

func (d *AsyncDispatcher) DispatchPasswordResetOTP(msg port.OTPMessage) {
	d.enqueue(job{kind: jobPasswordReset, msg: msg})
}

func (d *AsyncDispatcher) enqueue(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped, dispatcher closed",
			zap.String("kind", string(j.kind)),
			zap.String("email", logger.MaskEmail(j.msg.Email)),
		)
		return
	}

	select {
	case d.queue <- j:
	default:
		d.logger.Warn("notification dropped, queue full",
			zap.String("kind", string(j.kind)),
			zap.String("email", logger.MaskEmail(j.msg.Email)),
			zap.Int("capacity", cap(d.queue)),
		)
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *AsyncDispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case jobRegistration:
		err = d.sink.SendRegistrationOTP(ctx, j.msg)
	case jobPasswordReset:
		err = d.sink.SendPasswordResetOTP(ctx, j.msg)
	}

	if err != nil {
		d.logger.Error("otp email delivery failed",
			zap.String("kind", string(j.kind)),
			zap.String("email", logger.MaskEmail(j.msg.Email)),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("otp email delivered",
		zap.String("kind", string(j.kind)),
		zap.String("email", logger.MaskEmail(j.msg.Email)),
	)
}

var _ port.NotificationDispatcher = (*AsyncDispatcher)(nil)
