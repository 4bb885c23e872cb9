package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spider-home/config"
	"spider-home/internal/infra/secrets"
	"spider-home/internal/infra/spider"
)

// app carries what every subcommand needs once the root command has
// loaded configuration.
type app struct {
	configPath string
	envFile    string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
	client *spider.Client
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "spiderctl",
		Short: "Read and control Spider thermostats and smart plugs.",
		Long: `spiderctl talks to the Itho Daalderop Spider cloud service. It lists
thermostats and power plugs, changes setpoints, modes and fan speeds, switches
plugs, and can periodically report device state to InfluxDB, MQTT and Pushover.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.setup(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "path to config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newThermostatsCmd(a),
		newPlugsCmd(a),
		newSetTemperatureCmd(a),
		newSetModeCmd(a),
		newSetFanCmd(a),
		newPlugCmd(a),
		newReportCmd(a),
	)

	return root
}

func (a *app) setup(ctx context.Context) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	cfg, err := loadConfig(ctx, a.configPath)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = setupLogger(cfg.Log, os.Stderr)
	a.client = spider.NewClient(spiderConfig(cfg.Spider), a.logger)
	return nil
}

// loadConfig reads the config file and resolves any "ssm:" secrets in it.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if secrets.NeedsResolving(cfg.Secrets()) {
		resolver, err := secrets.NewResolver(setupLogger(cfg.Log, os.Stderr))
		if err != nil {
			return nil, err
		}
		if err := resolver.ResolveAll(ctx, cfg.Secrets()); err != nil {
			return nil, fmt.Errorf("resolving secrets: %w", err)
		}
	}

	return cfg, nil
}

func spiderConfig(cfg config.SpiderConfig) spider.Config {
	return spider.Config{
		BaseURL:         cfg.BaseURL,
		Username:        cfg.Username,
		Password:        cfg.Password,
		RefreshInterval: cfg.RefreshEvery(),
		RequestTimeout:  cfg.Timeout(),
		TokenMargin:     cfg.Margin(),
		Location:        cfg.Location(),
	}
}

func setupLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func (a *app) printJSON(v any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
