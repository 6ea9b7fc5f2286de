package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/temoto/c2link/internal/types"
)

var (
	flagVehicleName string
	flagVehicleType string
)

var vehicleCmd = &cobra.Command{
	Use:   "vehicle",
	Short: "Manage known vehicles",
}

var vehicleAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register vehicle, id suffix after last '-' is MAVLink system id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		id := args[0]
		v := &types.Vehicle{ID: id, Name: flagVehicleName, Type: flagVehicleType, Status: types.StatusUnknown}
		if v.Name == "" {
			v.Name = id
		}
		if err := a.Store.Upsert(context.Background(), v); err != nil {
			return err
		}
		printf("%s system_id=%d\n", v, types.SystemID(id))
		return nil
	},
}

var vehicleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vehicles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		vs, err := a.Store.List(context.Background())
		if err != nil {
			return err
		}
		for _, v := range vs {
			printf("%s\n", v)
		}
		return nil
	},
}

var vehicleShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show vehicle state and latest telemetry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		return showVehicle(context.Background(), a, args[0])
	},
}

var vehicleRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Forget vehicle",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Store.Delete(context.Background(), args[0])
	},
}

func init() {
	vehicleAddCmd.Flags().StringVar(&flagVehicleName, "name", "", "display name, default is id")
	vehicleAddCmd.Flags().StringVar(&flagVehicleType, "type", "", "vehicle type, e.g. quadcopter")
	vehicleCmd.AddCommand(vehicleAddCmd, vehicleListCmd, vehicleShowCmd, vehicleRemoveCmd)
}
