package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spider-home/internal/domain"
)

type Reporter struct {
	source   DeviceSource
	sinks    []Sink
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// online remembers the last seen state per device id.
	online map[string]bool
}

func NewReporter(source DeviceSource, sinks []Sink, notifier Notifier, logger *slog.Logger) *Reporter {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	return &Reporter{
		source:   source,
		sinks:    sinks,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		online:   make(map[string]bool),
	}
}

// Run reports immediately and then once per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("reporter started", "interval", interval, "sinks", len(r.sinks))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.ReportOnce(ctx); err != nil {
			r.logger.Error("report cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReportOnce takes one snapshot and hands it to every sink. A failing sink
// does not keep the others from receiving the snapshot.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	thermostats, err := r.source.GetThermostats(ctx)
	if err != nil {
		return fmt.Errorf("reading thermostats: %w", err)
	}
	plugs, err := r.source.GetPowerPlugs(ctx)
	if err != nil {
		return fmt.Errorf("reading power plugs: %w", err)
	}

	snap := Snapshot{Time: r.now(), Thermostats: thermostats, PowerPlugs: plugs}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, snap); err != nil {
			r.logger.Error("writing snapshot", "sink", sink.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		r.logger.Debug("snapshot written", "sink", sink.Name())
	}

	r.trackAvailability(ctx, thermostats)
	r.trackAvailability(ctx, plugs)

	r.logger.Info("report cycle done",
		"thermostats", len(thermostats),
		"power_plugs", len(plugs),
		"failed_sinks", len(errs),
	)

	return errors.Join(errs...)
}

func (r *Reporter) trackAvailability(ctx context.Context, devices []domain.Device) {
	for i := range devices {
		d := &devices[i]
		was, seen := r.online[d.ID]
		r.online[d.ID] = d.IsOnline
		if !seen || was == d.IsOnline {
			continue
		}

		msg := fmt.Sprintf("%s is back online", d.Name)
		if !d.IsOnline {
			msg = fmt.Sprintf("%s went offline", d.Name)
		}
		r.logger.Warn("device availability changed", "device_id", d.ID, "online", d.IsOnline)
		if err := r.notifier.Notify(ctx, msg); err != nil {
			r.logger.Error("notifying availability change", "device_id", d.ID, "error", err)
		}
	}
}
