package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"

	"spider-home/config"
	"spider-home/internal/infra/spider"
)

// newLambdaHandler runs one report cycle per scheduled CloudWatch event.
// Config and client are built on the first invocation and reused while the
// execution environment stays warm.
func newLambdaHandler(configPath string) func(context.Context, events.CloudWatchEvent) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var (
		cfg    *config.Config
		client *spider.Client
	)

	return func(ctx context.Context, e events.CloudWatchEvent) error {
		if cfg == nil {
			loaded, err := loadConfig(ctx, configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			client = spider.NewClient(spiderConfig(cfg.Spider), setupLogger(cfg.Log, os.Stdout))
		}

		logger := setupLogger(cfg.Log, os.Stdout)
		logger.Info("scheduled report", "event_id", e.ID, "source", e.Source)

		reporter, closeSinks, err := newReporter(ctx, cfg, client, logger)
		if err != nil {
			return err
		}
		defer closeSinks()

		if err := reporter.ReportOnce(ctx); err != nil {
			return fmt.Errorf("report cycle: %w", err)
		}
		return nil
	}
}
