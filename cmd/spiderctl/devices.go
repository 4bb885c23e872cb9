package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spider-home/internal/domain"
)

type thermostatView struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Online             bool     `json:"online"`
	CurrentTemperature float64  `json:"current_temperature"`
	TargetTemperature  float64  `json:"target_temperature"`
	MinTemperature     float64  `json:"min_temperature"`
	MaxTemperature     float64  `json:"max_temperature"`
	TemperatureStep    float64  `json:"temperature_step"`
	OperationMode      string   `json:"operation_mode,omitempty"`
	OperationModes     []string `json:"operation_modes,omitempty"`
	FanSpeed           string   `json:"fan_speed,omitempty"`
	FanSpeeds          []string `json:"fan_speeds,omitempty"`
}

func newThermostatView(d *domain.Device) thermostatView {
	minimum, maximum, step := d.TemperatureRange()
	v := thermostatView{
		ID:                 d.ID,
		Name:               d.Name,
		Online:             d.IsOnline,
		CurrentTemperature: d.CurrentTemperature(),
		TargetTemperature:  d.TargetTemperature(),
		MinTemperature:     minimum,
		MaxTemperature:     maximum,
		TemperatureStep:    step,
	}
	if d.HasOperationMode() {
		v.OperationMode = d.OperationMode()
		v.OperationModes = d.OperationModes()
	}
	if d.HasFanSpeed() {
		v.FanSpeed = d.FanSpeed()
		v.FanSpeeds = d.FanSpeeds()
	}
	return v
}

type plugView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Online       bool     `json:"online"`
	SwitchedOn   bool     `json:"switched_on"`
	Switchable   bool     `json:"switchable"`
	CurrentUsage float64  `json:"current_usage"`
	TodayUsage   *float64 `json:"today_usage,omitempty"`
}

func newPlugView(d *domain.Device) plugView {
	return plugView{
		ID:           d.ID,
		Name:         d.Name,
		Online:       d.IsOnline,
		SwitchedOn:   d.IsSwitchedOn,
		Switchable:   d.IsSwitchable,
		CurrentUsage: d.CurrentUsage,
		TodayUsage:   d.TodayUsage,
	}
}

func newThermostatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "thermostats",
		Short: "List thermostats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := a.client.GetThermostats(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]thermostatView, 0, len(devices))
			for i := range devices {
				views = append(views, newThermostatView(&devices[i]))
			}
			if a.jsonOutput {
				return a.printJSON(views)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tONLINE\tCURRENT\tTARGET\tMODE\tFAN")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
					v.ID, v.Name, v.Online,
					formatFloat(v.CurrentTemperature), formatFloat(v.TargetTemperature),
					dash(v.OperationMode), dash(v.FanSpeed))
			}
			return tw.Flush()
		},
	}
}

func newPlugsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plugs",
		Short: "List power plugs with their energy usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := a.client.GetPowerPlugs(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]plugView, 0, len(devices))
			for i := range devices {
				views = append(views, newPlugView(&devices[i]))
			}
			if a.jsonOutput {
				return a.printJSON(views)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tONLINE\tON\tUSAGE\tTODAY")
			for _, v := range views {
				today := "-"
				if v.TodayUsage != nil {
					today = formatFloat(*v.TodayUsage)
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n",
					v.ID, v.Name, v.Online, v.SwitchedOn, formatFloat(v.CurrentUsage), today)
			}
			return tw.Flush()
		},
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
