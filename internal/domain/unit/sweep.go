package unit

import (
	"context"
	"time"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/platform/metrics"
)

// ExpiryJob moves AVAILABLE and QUARANTINED units past their expiry
// timestamp to EXPIRED. Reserved units are not swept directly: the
// reservation-timeout job returns them to AVAILABLE first, and the next
// expiry pass catches them there.
type ExpiryJob struct {
	units   Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewExpiryJob(units Repository, m *metrics.Metrics) *ExpiryJob {
	return &ExpiryJob{units: units, metrics: m, now: time.Now}
}

func (j *ExpiryJob) Name() string { return "unit_expiry" }

func (j *ExpiryJob) Run(ctx context.Context) (int, error) {
	n, err := j.units.ExpireOverdue(ctx, j.now())
	if j.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		j.metrics.SweepRuns.WithLabelValues(j.Name(), outcome).Inc()
	}
	return n, err
}

// ReservationTimeoutJob releases reservations older than the configured
// timeout, returning the units to AVAILABLE so other requests can use them.
type ReservationTimeoutJob struct {
	units   Repository
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReservationTimeoutJob(units Repository, timeout time.Duration, m *metrics.Metrics) *ReservationTimeoutJob {
	return &ReservationTimeoutJob{units: units, timeout: timeout, metrics: m, now: time.Now}
}

func (j *ReservationTimeoutJob) Name() string { return "reservation_timeout" }

func (j *ReservationTimeoutJob) Run(ctx context.Context) (int, error) {
	n, err := j.units.ReleaseStaleReservations(ctx, j.now().Add(-j.timeout))
	if j.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		j.metrics.SweepRuns.WithLabelValues(j.Name(), outcome).Inc()
	}
	return n, err
}
