package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Spider   SpiderConfig   `yaml:"spider" toml:"spider"`
	Influx   InfluxConfig   `yaml:"influx" toml:"influx"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	Pushover PushoverConfig `yaml:"pushover" toml:"pushover"`
	Report   ReportConfig   `yaml:"report" toml:"report"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type SpiderConfig struct {
	BaseURL         string `yaml:"base_url" toml:"base_url"`
	Username        string `yaml:"username" toml:"username"`
	Password        string `yaml:"password" toml:"password"`
	RefreshInterval string `yaml:"refresh_interval" toml:"refresh_interval"`
	RequestTimeout  string `yaml:"request_timeout" toml:"request_timeout"`
	TokenMargin     string `yaml:"token_margin" toml:"token_margin"`
	Timezone        string `yaml:"timezone" toml:"timezone"`

	refreshInterval time.Duration
	requestTimeout  time.Duration
	tokenMargin     time.Duration
	location        *time.Location
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	URL     string `yaml:"url" toml:"url"`
	Token   string `yaml:"token" toml:"token"`
	Org     string `yaml:"org" toml:"org"`
	Bucket  string `yaml:"bucket" toml:"bucket"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Broker      string `yaml:"broker" toml:"broker"`
	ClientID    string `yaml:"client_id" toml:"client_id"`
	Username    string `yaml:"username" toml:"username"`
	Password    string `yaml:"password" toml:"password"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`
	QoS         int    `yaml:"qos" toml:"qos"`
}

type PushoverConfig struct {
	Token   string `yaml:"token" toml:"token"`
	UserKey string `yaml:"user_key" toml:"user_key"`
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	APIURL  string `yaml:"api_url" toml:"api_url"`
}

type ReportConfig struct {
	Interval string `yaml:"interval" toml:"interval"`

	interval time.Duration
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a YAML or TOML file, chosen by extension, expanding ${VAR}
// references from the environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Spider.BaseURL == "" {
		c.Spider.BaseURL = "https://mijn.ithodaalderop.nl"
	}
	if c.Spider.RefreshInterval == "" {
		c.Spider.RefreshInterval = "2m"
	}
	if c.Spider.RequestTimeout == "" {
		c.Spider.RequestTimeout = "15s"
	}
	if c.Spider.TokenMargin == "" {
		c.Spider.TokenMargin = "20s"
	}
	if c.Spider.Timezone == "" {
		c.Spider.Timezone = "Local"
	}
	if c.Influx.URL == "" {
		c.Influx.URL = "http://localhost:8086"
	}
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = "spider"
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "spiderctl"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "spider"
	}
	if c.Pushover.APIURL == "" {
		c.Pushover.APIURL = "https://api.pushover.net/1/messages.json"
	}
	if c.Report.Interval == "" {
		c.Report.Interval = "5m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks required fields and parses durations and the timezone.
// It reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Spider.Username == "" {
		errs = append(errs, errors.New("spider.username is required"))
	}
	if c.Spider.Password == "" {
		errs = append(errs, errors.New("spider.password is required"))
	}

	var err error
	if c.Spider.refreshInterval, err = positiveDuration("spider.refresh_interval", c.Spider.RefreshInterval); err != nil {
		errs = append(errs, err)
	}
	if c.Spider.requestTimeout, err = positiveDuration("spider.request_timeout", c.Spider.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Spider.tokenMargin, err = time.ParseDuration(c.Spider.TokenMargin); err != nil || c.Spider.tokenMargin < 0 {
		errs = append(errs, fmt.Errorf("spider.token_margin: invalid duration %q", c.Spider.TokenMargin))
	}
	if c.Spider.location, err = time.LoadLocation(c.Spider.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("spider.timezone: %w", err))
	}
	if c.Report.interval, err = positiveDuration("report.interval", c.Report.Interval); err != nil {
		errs = append(errs, err)
	}

	if c.Influx.Enabled && (c.Influx.Org == "" || c.Influx.Token == "") {
		errs = append(errs, errors.New("influx.org and influx.token are required when influx is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		errs = append(errs, errors.New("pushover.token and pushover.user_key are required when pushover is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Secrets returns the fields that may hold an "ssm:" reference, so callers
// can resolve them in place.
func (c *Config) Secrets() []*string {
	return []*string{
		&c.Spider.Username,
		&c.Spider.Password,
		&c.Influx.Token,
		&c.MQTT.Password,
		&c.Pushover.Token,
		&c.Pushover.UserKey,
	}
}

func (s SpiderConfig) RefreshEvery() time.Duration { return s.refreshInterval }
func (s SpiderConfig) Timeout() time.Duration { return s.requestTimeout }
func (s SpiderConfig) Margin() time.Duration { return s.tokenMargin }
func (s SpiderConfig) Location() *time.Location { return s.location }
func (r ReportConfig) Every() time.Duration { return r.interval }

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", name, value)
	}
	return d, nil
}
