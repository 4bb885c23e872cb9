package mqtt

import (
	"time"

	"spider-home/internal/domain"
)

type deviceState struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Online    bool      `json:"online"`
	UpdatedAt time.Time `json:"updated_at"`

	CurrentTemperature *float64 `json:"current_temperature,omitempty"`
	TargetTemperature  *float64 `json:"target_temperature,omitempty"`
	OperationMode      string   `json:"operation_mode,omitempty"`
	FanSpeed           string   `json:"fan_speed,omitempty"`

	SwitchedOn   *bool    `json:"switched_on,omitempty"`
	CurrentUsage *float64 `json:"current_usage,omitempty"`
	TodayUsage   *float64 `json:"today_usage,omitempty"`
}

func newState(d *domain.Device, at time.Time) deviceState {
	s := deviceState{
		ID:        d.ID,
		Name:      d.Name,
		Online:    d.IsOnline,
		UpdatedAt: at,
	}

	if d.Kind() == domain.KindPowerPlug {
		on, usage := d.IsSwitchedOn, d.CurrentUsage
		s.SwitchedOn = &on
		s.CurrentUsage = &usage
		s.TodayUsage = d.TodayUsage
		return s
	}

	current, target := d.CurrentTemperature(), d.TargetTemperature()
	s.CurrentTemperature = &current
	s.TargetTemperature = &target
	if d.HasOperationMode() {
		s.OperationMode = d.OperationMode()
	}
	if d.HasFanSpeed() {
		s.FanSpeed = d.FanSpeed()
	}
	return s
}
