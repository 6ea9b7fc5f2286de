package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep broker connection, ingest telemetry, deliver queued commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// under systemd journal adds timestamps
		underSystemd := sdnotify("STATUS=starting")
		a, err := newApp(cmd, underSystemd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		states, unwatch := a.Transport.Watch()
		defer unwatch()
		go func() {
			for st := range states {
				a.Log.Infof("transport %s", st)
			}
		}()

		if err := a.Start(ctx, true); err != nil {
			_ = a.Close()
			return err
		}
		sdnotify(daemon.SdNotifyReady)
		a.Log.Infof("c2link version=%s running", BuildVersion)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigs:
			a.Log.Infof("signal=%s stopping", s)
		case <-a.Alive.StopChan():
		}
		sdnotify(daemon.SdNotifyStopping)
		return a.Close()
	},
}
