package spider

import (
	"net/http"
	"time"
)

const (
	DefaultBaseURL         = "https://mijn.ithodaalderop.nl"
	DefaultRefreshInterval = 120 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
)

const (
	tokensPath        = "/api/tokens"
	devicesPath       = "/api/devices"
	energyDevicesPath = "/api/devices/energy/energyDevices"
	smartPlugsPath    = "/api/devices/energy/smartPlugs"
	monitoringPath    = "/api/monitoring/15/devices"
)

// Config is everything a Client needs. Zero fields take the package defaults.
type Config struct {
	BaseURL         string
	Username        string
	Password        string
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	TokenMargin     time.Duration
	// Location is used to find "today" for plug energy usage.
	Location *time.Location
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.TokenMargin <= 0 {
		c.TokenMargin = DefaultTokenMargin
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

type options struct {
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*options)

// WithHTTPClient replaces the default client, including its timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(cfg Config, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return o
}
