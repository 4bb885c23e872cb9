package spider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"spider-home/internal/domain"
)

// Client is the entry point to the Spider API. It is meant to be used from
// one goroutine at a time.
type Client struct {
	session *Session
	gateway *Gateway
	cache   *Cache
	logger  *slog.Logger
	now     func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.setDefaults()
	o := newOptions(cfg, opts)

	session := NewSession(cfg, logger, opts...)
	session.httpClient = o.httpClient

	gateway := NewGateway(cfg.BaseURL, o.httpClient, session, logger)

	cache := NewCache(gateway, cfg.RefreshInterval, cfg.Location, logger)
	cache.now = o.now

	return &Client{
		session: session,
		gateway: gateway,
		cache:   cache,
		logger:  logger,
		now:     o.now,
	}
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) Cache() *Cache { return c.cache }

func (c *Client) GetThermostats(ctx context.Context) ([]domain.Device, error) {
	return c.cache.List(ctx, domain.KindThermostat)
}

func (c *Client) GetThermostat(ctx context.Context, id string) (domain.Device, bool, error) {
	return c.cache.Get(ctx, domain.KindThermostat, id)
}

func (c *Client) GetPowerPlugs(ctx context.Context) ([]domain.Device, error) {
	return c.cache.List(ctx, domain.KindPowerPlug)
}

func (c *Client) GetPowerPlug(ctx context.Context, id string) (domain.Device, bool, error) {
	return c.cache.Get(ctx, domain.KindPowerPlug, id)
}

// SetTemperature changes the setpoint of a thermostat.
func (c *Client) SetTemperature(ctx context.Context, device *domain.Device, value float64) error {
	return c.mutate(ctx, device, domain.PropertySetpointTemperature, formatTemperature(value))
}

// SetOperationMode switches a thermostat between modes such as "Heat" and "Cool".
func (c *Client) SetOperationMode(ctx context.Context, device *domain.Device, mode string) error {
	return c.mutate(ctx, device, domain.PropertyOperationMode, capitalize(mode))
}

// SetFanSpeed accepts the values listed by Device.FanSpeeds, in any case for
// the first letter.
func (c *Client) SetFanSpeed(ctx context.Context, device *domain.Device, speed string) error {
	return c.mutate(ctx, device, domain.PropertyFanSpeed, capitalize(speed))
}

func (c *Client) TurnPowerPlugOn(ctx context.Context, id string) error {
	return c.switchPowerPlug(ctx, id, true)
}

func (c *Client) TurnPowerPlugOff(ctx context.Context, id string) error {
	return c.switchPowerPlug(ctx, id, false)
}

func (c *Client) switchPowerPlug(ctx context.Context, id string, on bool) error {
	plug, ok, err := c.cache.Get(ctx, domain.KindPowerPlug, id)
	if err != nil {
		c.logger.Error("looking up power plug failed", "device_id", id, "error", err)
		return err
	}
	if !ok {
		c.logger.Warn("unknown power plug", "device_id", id)
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if !plug.IsOnline {
		c.logger.Warn("refusing to switch offline power plug", "device_id", id)
		return fmt.Errorf("%w: %s", ErrDeviceOffline, id)
	}

	path := smartPlugsPath + "/" + url.PathEscape(id) + "/switch"
	if err := c.gateway.Submit(ctx, path, on); err != nil {
		c.logger.Error("switching power plug failed", "device_id", id, "on", on, "error", err)
		return fmt.Errorf("switching %s: %w", id, err)
	}

	plug.IsSwitchedOn = on
	if err := c.cache.Put(plug); err != nil {
		c.cache.Invalidate()
	}

	c.logger.Info("power plug switched", "device_id", id, "on", on)
	return nil
}
