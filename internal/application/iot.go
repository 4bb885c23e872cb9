package application

import (
	"context"
	"time"

	"spider-home/internal/domain"
)

// DeviceSource supplies the current device state. The spider client
// satisfies it.
type DeviceSource interface {
	GetThermostats(ctx context.Context) ([]domain.Device, error)
	GetPowerPlugs(ctx context.Context) ([]domain.Device, error)
}

// Snapshot is one observation of every device.
type Snapshot struct {
	Time        time.Time
	Thermostats []domain.Device
	PowerPlugs  []domain.Device
}

// Sink receives snapshots, e.g. a time series database or a message broker.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap Snapshot) error
}
