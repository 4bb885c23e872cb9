package domain

import "strings"

const defaultMode = "Idle"

func (d *Device) CurrentTemperature() float64 {
	return d.propertyFloat(PropertyAmbientTemperature)
}

func (d *Device) TargetTemperature() float64 {
	return d.propertyFloat(PropertySetpointTemperature)
}

// TemperatureRange returns the setpoint limits and increment, zero when unknown.
func (d *Device) TemperatureRange() (minimum, maximum, step float64) {
	p, ok := d.Property(PropertySetpointTemperature)
	if !ok {
		return 0, 0, 0
	}
	minimum, _ = p.Number("min")
	maximum, _ = p.Number("max")
	step, _ = p.Number("step")
	return minimum, maximum, step
}

func (d *Device) OperationMode() string {
	return d.propertyString(PropertyOperationMode, defaultMode)
}

func (d *Device) HasOperationMode() bool {
	_, ok := d.Property(PropertyOperationMode)
	return ok
}

func (d *Device) OperationModes() []string {
	return d.choices(PropertyOperationMode)
}

func (d *Device) FanSpeed() string {
	return d.propertyString(PropertyFanSpeed, defaultMode)
}

func (d *Device) HasFanSpeed() bool {
	_, ok := d.Property(PropertyFanSpeed)
	return ok
}

func (d *Device) FanSpeeds() []string {
	return d.choices(PropertyFanSpeed)
}

func (d *Device) String() string {
	var sb strings.Builder
	sb.WriteString(d.ID)
	sb.WriteString(" ")
	sb.WriteString(d.Name)
	if d.Model != "" {
		sb.WriteString(" (" + d.Model + ")")
	}
	if !d.IsOnline {
		sb.WriteString(" [offline]")
	}
	return sb.String()
}

func (d *Device) propertyFloat(id string) float64 {
	p, ok := d.Property(id)
	if !ok {
		return 0
	}
	f, _ := p.StatusFloat()
	return f
}

func (d *Device) propertyString(id, fallback string) string {
	p, ok := d.Property(id)
	if !ok {
		return fallback
	}
	return p.StatusString()
}

// choices lists the enabled schedule choices of a property in server order.
func (d *Device) choices(id string) []string {
	p, ok := d.Property(id)
	if !ok {
		return nil
	}
	var values []string
	for _, c := range p.ScheduleChoices() {
		if !c.Disabled {
			values = append(values, c.Value)
		}
	}
	return values
}
