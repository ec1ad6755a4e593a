package usecase

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts business outcomes that request-level HTTP metrics cannot distinguish.
type Metrics struct {
	otpIssued *prometheus.CounterVec
	logins    *prometheus.CounterVec
}

// NewMetrics registers the service collectors, reusing ones already registered under the same name.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	otpIssued, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "otp_issued_total",
		Help:      "One-time codes issued partitioned by purpose.",
	}, []string{"purpose"})
	if err != nil {
		return nil, err
	}

	logins, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by method and outcome.",
	}, []string{"method", "outcome"})
	if err != nil {
		return nil, err
	}

	return &Metrics{otpIssued: otpIssued, logins: logins}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
	}
	return counter, nil
}

func (m *Metrics) otpIssuedFor(purpose string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) login(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}
