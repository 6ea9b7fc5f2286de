package main

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/temoto/c2link/internal/app"
	"github.com/temoto/c2link/internal/command"
)

var flagWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send VEHICLE COMMAND [ARG...]",
	Short: "Send one command and wait for acknowledgement",
	Long:  "Send one command and wait for acknowledgement.\n\n" + command.Usage,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.Parse(args[1], args[2:])
		if err != nil {
			return err
		}
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		r := sendOne(a, args[0], c, flagWait)
		printf("%s %s: %s\n", args[0], c, r)
		if !r.OK() {
			return errors.Errorf("command %s", r)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().DurationVar(&flagWait, "connect-wait", 5*time.Second, "how long to wait for broker before fallback")
}

// sendOne gives transport connect wait time, then leaves outcome to coordinator fallback.
func sendOne(a *app.App, vehicleID string, c command.Command, wait time.Duration) command.Result {
	ctx := context.Background()
	if err := a.Start(ctx, false); err != nil {
		return command.Rejected(err.Error())
	}
	wctx, cancel := context.WithTimeout(ctx, wait)
	err := a.Transport.WaitConnected(wctx)
	cancel()
	if err != nil {
		a.Log.Errorf("transport not connected after %s, state=%s", wait, a.Transport.State())
	}
	return a.Coordinator.SendCommand(ctx, vehicleID, c)
}
