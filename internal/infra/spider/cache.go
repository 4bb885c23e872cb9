package spider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"spider-home/internal/domain"
)

type fetcher interface {
	Fetch(ctx context.Context, path string, v any) error
}

type collection struct {
	devices []domain.Device
	index   map[string]int
}

func newCollection(devices []domain.Device) collection {
	c := collection{devices: devices, index: make(map[string]int, len(devices))}
	for i := range devices {
		c.index[devices[i].ID] = i
	}
	return c
}

// Cache holds the last fetched thermostats and power plugs. Both collections
// are replaced together by a refresh cycle, or not at all.
type Cache struct {
	gateway  fetcher
	logger   *slog.Logger
	interval time.Duration
	location *time.Location
	now      func() time.Time

	mu          sync.RWMutex
	collections map[domain.DeviceKind]collection
	lastRefresh time.Time
}

func NewCache(gateway fetcher, interval time.Duration, location *time.Location, logger *slog.Logger) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if location == nil {
		location = time.Local
	}
	return &Cache{
		gateway:     gateway,
		logger:      logger,
		interval:    interval,
		location:    location,
		now:         time.Now,
		collections: make(map[domain.DeviceKind]collection),
	}
}

func (c *Cache) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale(now)
}

func (c *Cache) stale(now time.Time) bool {
	return c.lastRefresh.IsZero() || !now.Before(c.lastRefresh.Add(c.interval))
}

// RefreshIfStale re-fetches every device when the staleness window has passed.
// A fresh cache costs no network call.
func (c *Cache) RefreshIfStale(ctx context.Context, now time.Time) error {
	if !c.Stale(now) {
		return nil
	}
	return c.Refresh(ctx, now)
}

// Refresh fetches thermostats and power plugs and swaps them in. On error the
// previous contents are kept.
func (c *Cache) Refresh(ctx context.Context, now time.Time) error {
	c.logger.Debug("refreshing spider devices")

	thermostats, err := c.fetchThermostats(ctx)
	if err != nil {
		return fmt.Errorf("fetching thermostats: %w", err)
	}

	plugs, err := c.fetchPowerPlugs(ctx, now)
	if err != nil {
		return fmt.Errorf("fetching power plugs: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.collections = map[domain.DeviceKind]collection{
		domain.KindThermostat: newCollection(thermostats),
		domain.KindPowerPlug:  newCollection(plugs),
	}
	c.lastRefresh = now

	c.logger.Info("spider devices refreshed",
		"thermostats", len(thermostats),
		"power_plugs", len(plugs),
	)

	return nil
}

// Get returns a copy of one cached device after the staleness check.
func (c *Cache) Get(ctx context.Context, kind domain.DeviceKind, id string) (domain.Device, bool, error) {
	if err := c.RefreshIfStale(ctx, c.now()); err != nil {
		return domain.Device{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	col := c.collections[kind]
	i, ok := col.index[id]
	if !ok {
		return domain.Device{}, false, nil
	}
	d, err := col.devices[i].Clone()
	if err != nil {
		return domain.Device{}, false, err
	}
	return d, true, nil
}

// List returns copies of every cached device of a kind, in server order.
func (c *Cache) List(ctx context.Context, kind domain.DeviceKind) ([]domain.Device, error) {
	if err := c.RefreshIfStale(ctx, c.now()); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := c.collections[kind].devices
	result := make([]domain.Device, 0, len(devices))
	for i := range devices {
		d, err := devices[i].Clone()
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// Put reconciles a device that was written successfully. Unknown devices are
// ignored; only a refresh cycle adds devices.
func (c *Cache) Put(d domain.Device) error {
	stored, err := d.Clone()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.collections[d.Kind()]
	if !ok {
		return nil
	}
	if i, ok := col.index[d.ID]; ok {
		col.devices[i] = stored
	}
	return nil
}

// Invalidate makes the next access refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = time.Time{}
}

func (c *Cache) fetchThermostats(ctx context.Context) ([]domain.Device, error) {
	var all []domain.Device
	if err := c.gateway.Fetch(ctx, devicesPath, &all); err != nil {
		return nil, err
	}

	thermostats := make([]domain.Device, 0, len(all))
	for _, d := range all {
		if d.Type == domain.TypeThermostat {
			thermostats = append(thermostats, d)
		}
	}
	return thermostats, nil
}

func (c *Cache) fetchPowerPlugs(ctx context.Context, now time.Time) ([]domain.Device, error) {
	var all []domain.Device
	if err := c.gateway.Fetch(ctx, energyDevicesPath, &all); err != nil {
		return nil, err
	}

	plugs := make([]domain.Device, 0, len(all))
	for _, d := range all {
		if !d.IsSwitch {
			continue
		}
		if usage, ok := c.todayUsage(ctx, d.ID, now); ok {
			d.TodayUsage = &usage
		}
		plugs = append(plugs, d)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return plugs, nil
}

type jsonNumber float64

func (n *jsonNumber) UnmarshalJSON(b []byte) error {
	f, ok := domain.ParseNumber(b)
	if !ok {
		return fmt.Errorf("not a number: %s", string(b))
	}
	*n = jsonNumber(f)
	return nil
}

type energyReading struct {
	TotalEnergy struct {
		Normal jsonNumber `json:"normal"`
		Low    jsonNumber `json:"low"`
	} `json:"totalEnergy"`
}

// todayUsage sums the energy used since local midnight. Failures are logged
// and reported as unknown usage rather than failing the refresh.
func (c *Cache) todayUsage(ctx context.Context, id string, now time.Time) (float64, bool) {
	local := now.In(c.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)

	query := url.Values{}
	query.Set("take", "96")
	query.Set("start", strconv.FormatInt(midnight.Unix(), 10)+"000")
	path := monitoringPath + "/" + url.PathEscape(id) + "?" + query.Encode()

	var readings []energyReading
	if err := c.gateway.Fetch(ctx, path, &readings); err != nil {
		c.logger.Warn("fetching today's energy usage failed", "device_id", id, "error", err)
		return 0, false
	}
	if len(readings) == 0 {
		c.logger.Warn("no energy usage reported for today", "device_id", id)
		return 0, false
	}

	return float64(readings[0].TotalEnergy.Normal) + float64(readings[0].TotalEnergy.Low), true
}
