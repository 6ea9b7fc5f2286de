package main

import (
	"context"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"github.com/temoto/c2link/helpers/cli"
	"github.com/temoto/c2link/internal/app"
	"github.com/temoto/c2link/internal/command"
)

const consoleHelp = `VEHICLE COMMAND [ARG...]   send command, e.g. drone-1 takeoff 10
list                       vehicles
show VEHICLE               vehicle state and latest telemetry
state                      transport connection state
help
`

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive command console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Start(context.Background(), true); err != nil {
			return err
		}
		return cli.MainLoop("c2link", newExecutor(a), newCompleter())
	},
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	verbs := []prompt.Suggest{
		{Text: "list", Description: "vehicles"},
		{Text: "show", Description: "vehicle state"},
		{Text: "state", Description: "transport state"},
		{Text: "help"},
	}
	commands := make([]prompt.Suggest, 0, len(command.Names))
	for _, name := range command.Names {
		commands = append(commands, prompt.Suggest{Text: name})
	}
	return func(d prompt.Document) []prompt.Suggest {
		before := d.TextBeforeCursor()
		word := len(strings.Fields(before))
		if strings.HasSuffix(before, " ") {
			word++
		}
		switch word {
		case 0, 1:
			return cli.Words(d, verbs)
		case 2: // after vehicle id
			return cli.Words(d, commands)
		}
		return nil
	}
}

func newExecutor(a *app.App) func(string) {
	ctx := context.Background()
	return func(line string) {
		words := strings.Fields(line)
		switch words[0] {
		case "help", "?":
			printf("%s\n%s", consoleHelp, command.Usage)
		case "state":
			printf("%s\n", a.Transport.State())
		case "list":
			vs, err := a.Store.List(ctx)
			if err != nil {
				a.Log.Error(err)
				return
			}
			for _, v := range vs {
				printf("%s\n", v)
			}
		case "show":
			if len(words) != 2 {
				printf("usage: show VEHICLE\n")
				return
			}
			if err := showVehicle(ctx, a, words[1]); err != nil {
				a.Log.Error(err)
			}
		default:
			if len(words) < 2 {
				printf("unknown input, try help\n")
				return
			}
			c, err := command.Parse(words[1], words[2:])
			if err != nil {
				printf("%v\n", err)
				return
			}
			r := a.Coordinator.SendCommand(ctx, words[0], c)
			printf("%s %s: %s\n", words[0], c, r)
		}
	}
}

func showVehicle(ctx context.Context, a *app.App, id string) error {
	v, err := a.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	printf("%s\n", v)
	snap, err := a.Store.Latest(ctx, id)
	if err == nil {
		printf("latest %s %s\n", snap.Time.Format("15:04:05.000"), snap.Position)
	}
	if v.Battery != nil {
		printf("battery %d%% %dmV\n", v.Battery.RemainingPercent, v.Battery.VoltageMv)
	}
	return nil
}
