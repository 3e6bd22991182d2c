package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trendbot/internal/metrics"
	"trendbot/internal/model"
)

// RelayOptions configures a Relay.
type RelayOptions struct {
	Size     string         // order size shown in entry alerts
	Location *time.Location // display time zone, default UTC
	Timeout  time.Duration  // per-alert delivery timeout, default 15s
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Relay turns engine decisions into alerts. Delivery failures are logged and
// counted, never retried.
type Relay struct {
	n       Notifier
	size    string
	loc     *time.Location
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewRelay creates a relay over n.
func NewRelay(n Notifier, opts RelayOptions) *Relay {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Relay{
		n:       n,
		size:    opts.Size,
		loc:     opts.Location,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     opts.Logger.With().Str("component", "notify-relay").Logger(),
	}
}

// Run consumes decisions until ctx is cancelled or ch is closed.
func (r *Relay) Run(ctx context.Context, ch <-chan model.Decision) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			r.Notify(ctx, DecisionAlert(d, r.size, r.loc))
		}
	}
}

// Notify delivers one alert with the relay timeout.
func (r *Relay) Notify(ctx context.Context, alert Alert) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.n.Send(ctx, alert)
	result := "sent"
	if err != nil {
		result = "error"
		r.log.Warn().Err(err).Str("title", alert.Title).Msg("alert delivery failed")
	}
	if r.metrics != nil {
		r.metrics.NotificationsTotal.WithLabelValues(result).Inc()
	}
	return err
}
