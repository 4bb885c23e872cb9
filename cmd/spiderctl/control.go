package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"spider-home/internal/domain"
)

func (a *app) thermostat(ctx context.Context, id string) (domain.Device, error) {
	d, ok, err := a.client.GetThermostat(ctx, id)
	if err != nil {
		return domain.Device{}, err
	}
	if !ok {
		return domain.Device{}, fmt.Errorf("no thermostat with id %q", id)
	}
	return d, nil
}

func newSetTemperatureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-temperature ID VALUE",
		Short: "Change a thermostat setpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid temperature %q: %w", args[1], err)
			}

			d, err := a.thermostat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if minimum, maximum, _ := d.TemperatureRange(); maximum > 0 && (value < minimum || value > maximum) {
				return fmt.Errorf("temperature %s outside %s..%s", args[1], formatFloat(minimum), formatFloat(maximum))
			}

			if err := a.client.SetTemperature(cmd.Context(), &d, value); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: target temperature %s\n", d.Name, formatFloat(d.TargetTemperature()))
			return nil
		},
	}
}

func newSetModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-mode ID MODE",
		Short: "Change a thermostat operation mode (e.g. heat, cool)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.thermostat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.client.SetOperationMode(cmd.Context(), &d, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: operation mode %s\n", d.Name, d.OperationMode())
			return nil
		},
	}
}

func newSetFanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-fan ID SPEED",
		Short: "Change a thermostat fan speed (e.g. auto, low, boost 30)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.thermostat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.client.SetFanSpeed(cmd.Context(), &d, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: fan speed %s\n", d.Name, d.FanSpeed())
			return nil
		},
	}
}

func newPlugCmd(a *app) *cobra.Command {
	plug := &cobra.Command{
		Use:   "plug",
		Short: "Switch a power plug",
	}

	for _, state := range []struct {
		name string
		on   bool
	}{{"on", true}, {"off", false}} {
		state := state
		plug.AddCommand(&cobra.Command{
			Use:   state.name + " ID",
			Short: "Turn a power plug " + state.name,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var err error
				if state.on {
					err = a.client.TurnPowerPlugOn(cmd.Context(), args[0])
				} else {
					err = a.client.TurnPowerPlugOff(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s\n", args[0], state.name)
				return nil
			},
		})
	}

	return plug
}
