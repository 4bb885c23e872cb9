package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jinzhu/copier"
)

type DeviceKind string

const (
	KindThermostat DeviceKind = "thermostat"
	KindPowerPlug  DeviceKind = "power_plug"
)

// Device type discriminators reported by the Spider API.
const (
	TypePowerPlug    = 103
	TypeThermostat   = 105
	TypeEnergyDevice = 200
)

const (
	PropertySetpointTemperature = "SetpointTemperature"
	PropertyAmbientTemperature  = "AmbientTemperature"
	PropertyOperationMode       = "OperationMode"
	PropertyFanSpeed            = "FanSpeed"
)

// StatusTimeLayout is the format the service uses for statusLastUpdated.
const StatusTimeLayout = "2006-01-02 15:04:05.000000"

var ErrPropertyNotFound = errors.New("property not found")

// Device is a thermostat or energy device as returned by the Spider API.
//
// The API only accepts full-object writes, so every JSON member that is not
// modeled here is kept in Extra and written back unchanged.
type Device struct {
	ID           string
	Type         int
	Name         string
	Model        string
	Manufacturer string
	IsOnline     bool
	Properties   []Property

	IsSwitch     bool
	IsSwitchedOn bool
	IsSwitchable bool
	CurrentUsage float64
	TodayUsage   *float64

	Extra map[string]json.RawMessage
}

func (d Device) Kind() DeviceKind {
	if d.IsSwitch {
		return KindPowerPlug
	}
	return KindThermostat
}

// Clone returns a deep copy that shares no slices or maps with d.
func (d Device) Clone() (Device, error) {
	var out Device
	if err := copier.CopyWithOption(&out, &d, copier.Option{DeepCopy: true}); err != nil {
		return Device{}, fmt.Errorf("copying device %s: %w", d.ID, err)
	}
	return out, nil
}

func (d *Device) Property(id string) (*Property, bool) {
	for i := range d.Properties {
		if d.Properties[i].ID == id {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// ResetModified clears statusModified on every property. The service applies
// every flagged property on a write, so this must run before each mutation.
func (d *Device) ResetModified() {
	for i := range d.Properties {
		d.Properties[i].StatusModified = false
	}
}

// ApplyStatus flags exactly one property for the next write.
func (d *Device) ApplyStatus(propertyID string, status any, now time.Time) error {
	d.ResetModified()

	p, ok := d.Property(propertyID)
	if !ok {
		return fmt.Errorf("%w: %s on device %s", ErrPropertyNotFound, propertyID, d.ID)
	}

	p.Status = status
	p.StatusModified = true
	p.StatusLastUpdated = now.Format(StatusTimeLayout)
	return nil
}

func (d Device) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+12)
	for k, v := range d.Extra {
		out[k] = v
	}

	out["id"] = d.ID
	out["type"] = d.Type
	out["name"] = d.Name
	out["model"] = d.Model
	out["manufacturer"] = d.Manufacturer
	out["isOnline"] = d.IsOnline
	if d.Properties != nil {
		out["properties"] = d.Properties
	}
	if d.IsSwitch {
		out["isSwitch"] = true
		out["isSwitchedOn"] = d.IsSwitchedOn
		out["isSwitchable"] = d.IsSwitchable
		out["currentUsage"] = d.CurrentUsage
	}
	if d.TodayUsage != nil {
		out["todayUsage"] = *d.TodayUsage
	}

	return json.Marshal(out)
}

func (d *Device) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*d = Device{}
	for _, f := range []struct {
		key string
		dst any
	}{
		{"id", &d.ID},
		{"type", &d.Type},
		{"name", &d.Name},
		{"model", &d.Model},
		{"manufacturer", &d.Manufacturer},
		{"isOnline", &d.IsOnline},
		{"properties", &d.Properties},
		{"isSwitch", &d.IsSwitch},
		{"isSwitchedOn", &d.IsSwitchedOn},
		{"isSwitchable", &d.IsSwitchable},
	} {
		if err := takeField(fields, f.key, f.dst); err != nil {
			return fmt.Errorf("device: %w", err)
		}
	}

	if raw, ok := fields["currentUsage"]; ok {
		delete(fields, "currentUsage")
		d.CurrentUsage, _ = ParseNumber(raw)
	}
	if raw, ok := fields["todayUsage"]; ok {
		delete(fields, "todayUsage")
		if v, ok := ParseNumber(raw); ok {
			d.TodayUsage = &v
		}
	}

	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

// Property is one independently settable or observable attribute of a device.
// Members such as min, max, step and scheduleChoices stay in Extra and are
// read through accessors so they round-trip in their original form.
type Property struct {
	ID                string
	Status            any
	StatusModified    bool
	StatusLastUpdated string

	Extra map[string]json.RawMessage
}

type ScheduleChoice struct {
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
}

func (p Property) StatusString() string {
	switch v := p.Status.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (p Property) StatusFloat() (float64, bool) {
	switch v := p.Status.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (p Property) Number(key string) (float64, bool) {
	raw, ok := p.Extra[key]
	if !ok {
		return 0, false
	}
	return ParseNumber(raw)
}

func (p Property) ScheduleChoices() []ScheduleChoice {
	raw, ok := p.Extra["scheduleChoices"]
	if !ok {
		return nil
	}
	var choices []ScheduleChoice
	if err := json.Unmarshal(raw, &choices); err != nil {
		return nil
	}
	return choices
}

func (p Property) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["id"] = p.ID
	out["status"] = p.Status
	out["statusModified"] = p.StatusModified
	out["statusLastUpdated"] = p.StatusLastUpdated
	return json.Marshal(out)
}

func (p *Property) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*p = Property{}
	if err := takeField(fields, "id", &p.ID); err != nil {
		return fmt.Errorf("property: %w", err)
	}
	if raw, ok := fields["status"]; ok {
		delete(fields, "status")
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&p.Status); err != nil {
			return fmt.Errorf("property %s: decoding status: %w", p.ID, err)
		}
	}
	if err := takeField(fields, "statusModified", &p.StatusModified); err != nil {
		return fmt.Errorf("property %s: %w", p.ID, err)
	}
	if err := takeField(fields, "statusLastUpdated", &p.StatusLastUpdated); err != nil {
		return fmt.Errorf("property %s: %w", p.ID, err)
	}

	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

// ParseNumber accepts a JSON number or a numeric JSON string.
func ParseNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
