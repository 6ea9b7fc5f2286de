// c2link commands and monitors vehicles over MQTT using signed MAVLink frames.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/temoto/c2link/helpers/cli"
	"github.com/temoto/c2link/internal/app"
	"github.com/temoto/c2link/internal/config"
	"github.com/temoto/c2link/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

const defaultConfigPath = "c2link.hcl"

var (
	flagConfig string
	env        = viper.New()
	log        = log2.NewStderr(log2.LInfo)
)

var rootCmd = &cobra.Command{
	Use:           "c2link",
	Short:         "Command and telemetry link for remote vehicles",
	Version:       BuildVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", defaultConfigPath, "config file, HCL")
	addOverrideFlags(pf)
	if err := env.BindPFlags(pf); err != nil {
		panic(err)
	}
	env.SetEnvPrefix("C2LINK")
	env.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	env.AutomaticEnv()

	rootCmd.AddCommand(runCmd, sendCmd, consoleCmd, keyCmd, vehicleCmd)
}

// addOverrideFlags flags mirror C2LINK_* environment, both override config file.
func addOverrideFlags(pf *pflag.FlagSet) {
	pf.String(config.KeyBroker, "", "broker url, e.g. tls://broker:8883")
	pf.String(config.KeyClientID, "", "MQTT client id")
	pf.String(config.KeyTopicPrefix, "", "topic prefix")
	pf.String(config.KeyPassphrase, "", "signing passphrase, enables signing")
	pf.String(config.KeyDB, "", "sqlite database path")
	pf.String(config.KeyPersist, "", "persistent state directory")
	pf.String(config.KeyFallback, "", "transport failure policy: apply_local|queue|reject")
	pf.String(config.KeyLogFile, "", "log to rotated file instead of stderr")
	pf.Bool(config.KeyDebug, false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// loadConfig reads config file, missing default file means empty config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var fs config.FullReader = config.NewOsFullReader()
	name := flagConfig
	if _, err := os.Stat(name); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		fs = config.NewMockFullReader(map[string]string{"empty": ""})
		name = "empty"
	}
	c, err := config.Read(log, fs, name)
	if err != nil {
		return nil, err
	}
	c.Override(env)
	return c, nil
}

// setupLog service=true selects journald friendly flags.
func setupLog(c *config.Config, service bool) {
	level := c.LogLevel()
	if c.Log.File != "" {
		log = log2.NewFile(c.Log.File, c.Log.MaxSizeMB, c.Log.MaxBackups, level)
		return
	}
	log.SetLevel(level)
	switch {
	case service:
		log.SetFlags(log2.LServiceFlags)
	case cli.IsTerminal(os.Stderr):
		log.SetFlags(log2.LInteractiveFlags)
	}
}

func newApp(cmd *cobra.Command, service bool) (*app.App, error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, errors.Annotate(err, "config")
	}
	setupLog(c, service)
	a := app.New(log, BuildVersion)
	if err := a.Init(c); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify: %v", err)
	}
	return ok
}

func printf(format string, args ...interface{}) { fmt.Fprintf(os.Stdout, format, args...) }
