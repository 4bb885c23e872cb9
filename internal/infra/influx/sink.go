package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"spider-home/internal/application"
	"spider-home/internal/domain"
)

const defaultPingTimeout = 5 * time.Second

var ErrConnectionFailed = errors.New("influxdb connection failed")

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Sink writes thermostat and energy measurements with the blocking write
// API, so a failed write surfaces in the report cycle that caused it.
type Sink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	logger *slog.Logger
}

// Connect pings the server before handing out a sink.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Sink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	sink := NewSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), logger)
	sink.client = client
	return sink, nil
}

func NewSink(writer api.WriteAPIBlocking, logger *slog.Logger) *Sink {
	return &Sink{writer: writer, logger: logger}
}

func (s *Sink) Name() string { return "influx" }

func (s *Sink) Write(ctx context.Context, snap application.Snapshot) error {
	points := Points(snap)
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("writing %d points: %w", len(points), err)
	}
	s.logger.Debug("points written", "count", len(points))
	return nil
}

func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Points converts a snapshot into one "thermostat" point per thermostat and
// one "energy" point per power plug.
func Points(snap application.Snapshot) []*write.Point {
	points := make([]*write.Point, 0, len(snap.Thermostats)+len(snap.PowerPlugs))

	for i := range snap.Thermostats {
		d := &snap.Thermostats[i]
		points = append(points, write.NewPoint(
			"thermostat",
			tags(d),
			map[string]interface{}{
				"current_temperature": d.CurrentTemperature(),
				"target_temperature":  d.TargetTemperature(),
				"online":              d.IsOnline,
			},
			snap.Time,
		))
	}

	for i := range snap.PowerPlugs {
		d := &snap.PowerPlugs[i]
		fields := map[string]interface{}{
			"current_usage": d.CurrentUsage,
			"switched_on":   d.IsSwitchedOn,
		}
		if d.TodayUsage != nil {
			fields["today_usage"] = *d.TodayUsage
		}
		points = append(points, write.NewPoint("energy", tags(d), fields, snap.Time))
	}

	return points
}

func tags(d *domain.Device) map[string]string {
	return map[string]string{
		"device_id": d.ID,
		"name":      d.Name,
	}
}
