package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"spider-home/config"
	"spider-home/internal/application"
	"spider-home/internal/infra/influx"
	"spider-home/internal/infra/mqtt"
	"spider-home/internal/infra/pushover"
)

func newReportCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report device state to the configured sinks",
		Long: `report reads every thermostat and power plug and writes the result to
InfluxDB and MQTT when they are enabled. Devices going offline or coming back
are announced through Pushover. Without --once it repeats on report.interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reporter, closeSinks, err := newReporter(cmd.Context(), a.cfg, a.client, a.logger)
			if err != nil {
				return err
			}
			defer closeSinks()

			if once {
				return reporter.ReportOnce(cmd.Context())
			}

			err = reporter.Run(cmd.Context(), a.cfg.Report.Every())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single report cycle and exit")
	return cmd
}

// newReporter connects the enabled sinks. The returned func closes them.
func newReporter(ctx context.Context, cfg *config.Config, source application.DeviceSource, logger *slog.Logger) (*application.Reporter, func(), error) {
	var (
		sinks   []application.Sink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Influx.Enabled {
		sink, err := influx.Connect(ctx, influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	if cfg.MQTT.Enabled {
		sink, err := mqtt.Connect(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	if len(sinks) == 0 {
		logger.Warn("no sinks enabled, reports only reach the log")
	}

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey, cfg.Pushover.APIURL)
	} else {
		notifier = &application.NoopNotifier{}
	}

	return application.NewReporter(source, sinks, notifier, logger), closeAll, nil
}
