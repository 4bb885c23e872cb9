package spider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"unicode"
	"unicode/utf8"

	"spider-home/internal/domain"
)

// capitalize upper-cases the first letter only, which is how the service
// spells its enum values ("auto" -> "Auto", "boost 10" -> "Boost 10").
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func formatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// mutate applies one property change to a working copy of device, submits the
// full object and, on success, copies the result back to device and the cache.
// On failure device is left as it was.
func (c *Client) mutate(ctx context.Context, device *domain.Device, propertyID string, status any) error {
	if !device.IsOnline {
		c.logger.Warn("refusing command for offline device", "device_id", device.ID, "property", propertyID)
		return fmt.Errorf("%w: %s", ErrDeviceOffline, device.ID)
	}

	working, err := device.Clone()
	if err != nil {
		return err
	}

	if err := working.ApplyStatus(propertyID, status, c.now()); err != nil {
		c.logger.Warn("cannot apply property change", "device_id", device.ID, "property", propertyID, "error", err)
		return err
	}

	if err := c.gateway.Submit(ctx, devicesPath+"/"+url.PathEscape(working.ID), working); err != nil {
		c.logger.Error("submitting device failed", "device_id", device.ID, "property", propertyID, "error", err)
		return fmt.Errorf("updating %s on %s: %w", propertyID, device.ID, err)
	}

	*device = working
	if err := c.cache.Put(working); err != nil {
		c.logger.Warn("reconciling cache failed, invalidating", "device_id", device.ID, "error", err)
		c.cache.Invalidate()
	}

	c.logger.Info("device updated", "device_id", device.ID, "property", propertyID, "status", status)
	return nil
}
