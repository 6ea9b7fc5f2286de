// Package app wires c2link components from config and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/internal/command"
	"github.com/temoto/c2link/internal/config"
	"github.com/temoto/c2link/internal/journal"
	"github.com/temoto/c2link/internal/store"
	"github.com/temoto/c2link/internal/telemetry"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/c2link/mavlink"
	"github.com/temoto/c2link/transport"
)

const ContextKey = "run/app"

type App struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *config.Config
	Log          *log2.Log
	// in-process broker for driver=mem
	Mem *transport.MemBroker

	Signer      *mavlink.Signer
	Checkpoint  *mavlink.Checkpoint
	Encoder     *mavlink.Encoder
	Parser      *mavlink.Parser
	Topics      transport.Topics
	Transport   *transport.Manager
	Store       *store.Store
	Outbox      *command.Outbox
	Coordinator *command.Coordinator
	Telemetry   *telemetry.Service

	closers []func() error
}

func New(log *log2.Log, buildVersion string) *App {
	return &App{
		Alive:        alive.NewAlive(),
		BuildVersion: buildVersion,
		Log:          log,
	}
}

func ContextWithApp(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, ContextKey, a)
}

func GetApp(ctx context.Context) *App {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if a, ok := v.(*App); ok {
		return a
	}
	panic(fmt.Sprintf("context['%s'] expected type *App actual=%#v", ContextKey, v))
}

// Init builds components without network IO.
// If Init fails, consider App is in broken state, Close still releases what was opened.
func (a *App) Init(cfg *config.Config) error {
	a.Config = cfg
	a.Log.Debugf("build version=%s persist=%s", a.BuildVersion, cfg.PersistPath(""))

	if err := a.initSigning(); err != nil {
		return errors.Annotate(err, "signing init")
	}
	a.Encoder = mavlink.NewEncoder(a.Signer, a.component("mavlink", false))
	a.Parser = mavlink.NewParser(a.Signer, a.component("mavlink", false))
	a.Parser.RequireSigned = cfg.Signing.RequireSigned
	a.Topics = transport.NewTopics(cfg.Transport.TopicPrefix)

	opt, err := cfg.Transport.OptionsWithBroker(a.Mem)
	if err != nil {
		return errors.Annotate(err, "transport config")
	}
	if a.Transport, err = transport.NewManager(opt, a.component("transport", cfg.Transport.LogDebug)); err != nil {
		return errors.Annotate(err, "transport init")
	}
	a.closers = append(a.closers, a.Transport.Close)

	storeConfig := cfg.Store
	if a.Store, err = store.Open(storeConfig, a.component("store", storeConfig.LogDebug)); err != nil {
		return errors.Annotate(err, "store init")
	}
	a.closers = append(a.closers, a.Store.Close)

	settings, err := cfg.Command.Settings()
	if err != nil {
		return errors.Annotate(err, "command config")
	}
	clog := a.component("command", cfg.Command.LogDebug)
	if settings.Fallback == command.FallbackQueue {
		retry := helpers.IntSecondDefault(cfg.Command.RetrySec, journal.DefaultRetryDelay)
		if a.Outbox, err = command.OpenOutbox(cfg.OutboxPath(), retry, clog); err != nil {
			return errors.Annotate(err, "outbox init")
		}
		a.closers = append(a.closers, a.Outbox.Close)
	}
	a.Coordinator, err = command.NewCoordinator(settings, a.Store, a.Transport, a.Encoder, a.Parser, a.Topics, a.Outbox, clog)
	return errors.Annotate(err, "command init")
}

func (a *App) initSigning() error {
	a.Signer = mavlink.NewSigner(nil)
	key, err := a.Config.Signing.Key()
	if err != nil || key == nil {
		if err == nil {
			a.Log.Infof("signing disabled, frames are sent unsigned")
		}
		return err
	}
	link, err := a.Config.Signing.Link()
	if err != nil {
		return err
	}
	if err = a.Signer.Configure(key, link); err != nil {
		return err
	}
	a.Checkpoint = mavlink.NewCheckpoint(a.Config.PersistPath("signing"), a.Config.Signing.CheckpointInterval(), a.component("signing", false))
	return a.Checkpoint.Load(a.Signer)
}

// component log is debug level when either global or component debug is set.
func (a *App) component(name string, debug bool) *log2.Log {
	level := a.Config.LogLevel()
	if debug {
		level = log2.LDebug
	}
	return a.Log.Clone(level).Prefixed(name + ": ")
}

// Start launches background workers: signing checkpoint, outbox delivery,
// telemetry ingest when ingest is true. Connect is started, not awaited.
func (a *App) Start(ctx context.Context, ingest bool) error {
	if a.Checkpoint != nil {
		a.Alive.Add(1)
		go a.Checkpoint.Run(a.Alive, a.Signer)
	}
	if a.Outbox != nil {
		a.Alive.Add(1)
		go a.Outbox.Run(a.Alive, a.Transport)
	}
	if ingest {
		tc := a.Config.Telemetry
		tlog := a.component("telemetry", tc.LogDebug)
		q, err := journal.Open(a.Config.JournalPath(), "telemetry", tlog)
		if err != nil {
			return errors.Annotate(err, "telemetry journal")
		}
		a.closers = append(a.closers, q.Close)
		a.Telemetry = telemetry.NewService(tc, a.Store, a.Transport, a.Parser, a.Topics, q, tlog)
		a.Alive.Add(1)
		go a.Telemetry.Run(a.Alive)
	}
	// failed connect is rescheduled by transport
	if err := a.Transport.Connect(ctx); err != nil {
		a.Log.Errorf("transport connect err=%v", err)
	}
	return nil
}

func (a *App) Stop() { a.Alive.Stop() }

// StopWait returns false if workers did not finish in time.
func (a *App) StopWait(timeout time.Duration) bool {
	a.Alive.Stop()
	select {
	case <-a.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops workers and releases resources in reverse order of opening.
func (a *App) Close() error {
	if !a.StopWait(10 * time.Second) {
		a.Log.Errorf("workers did not stop in time")
	}
	errs := make([]error, 0, len(a.closers))
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return helpers.FoldErrors(errs)
}

func (a *App) Fatal(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			err = errors.Annotatef(err, msg, args[1:]...)
		}
		_ = a.Close()
		a.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}
