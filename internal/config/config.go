// Package config reads c2link HCL config with includes and applies flag/env overrides.
package config

import (
	"path/filepath"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/internal/command"
	"github.com/temoto/c2link/internal/store"
	"github.com/temoto/c2link/internal/telemetry"
	"github.com/temoto/c2link/log2"
	"github.com/temoto/c2link/transport"
)

const DefaultPersistRoot = "./c2link-state"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Transport transport.Config `hcl:"transport"`
	Signing   Signing          `hcl:"signing"`
	Command   command.Config   `hcl:"command"`
	Telemetry telemetry.Config `hcl:"telemetry"`
	Store     store.Config     `hcl:"store"`
	Persist   struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	Log struct {
		File       string `hcl:"file"`
		MaxSizeMB  int    `hcl:"max_size_mb"`
		MaxBackups int    `hcl:"max_backups"`
		Debug      bool   `hcl:"debug"`
	} `hcl:"log"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}
	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read merges sources in order, later values win.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("config without names")
	}
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustRead(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := Read(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

// Override keys settable from command line flags or C2LINK_* environment.
const (
	KeyBroker      = "broker"
	KeyClientID    = "client-id"
	KeyTopicPrefix = "topic-prefix"
	KeyPassphrase  = "passphrase"
	KeyDB          = "db"
	KeyPersist     = "persist"
	KeyFallback    = "fallback"
	KeyDebug       = "debug"
	KeyLogFile     = "log-file"
)

// Override applies values explicitly set in v.
func (c *Config) Override(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str(KeyBroker, &c.Transport.BrokerURL)
	str(KeyClientID, &c.Transport.ClientID)
	str(KeyTopicPrefix, &c.Transport.TopicPrefix)
	str(KeyPassphrase, &c.Signing.Passphrase)
	str(KeyDB, &c.Store.Path)
	str(KeyPersist, &c.Persist.Root)
	str(KeyFallback, &c.Command.Fallback)
	str(KeyLogFile, &c.Log.File)
	if v.IsSet(KeyPassphrase) && v.GetString(KeyPassphrase) != "" {
		c.Signing.Enable = true
	}
	if v.IsSet(KeyDebug) && v.GetBool(KeyDebug) {
		c.Log.Debug = true
	}
}

// PersistPath is name under persist root, root defaults to DefaultPersistRoot.
func (c *Config) PersistPath(name string) string {
	root := c.Persist.Root
	if root == "" {
		root = DefaultPersistRoot
	}
	return filepath.Join(root, name)
}

func (c *Config) OutboxPath() string {
	if c.Command.OutboxPath != "" {
		return c.Command.OutboxPath
	}
	return c.PersistPath("outbox")
}

func (c *Config) JournalPath() string {
	if c.Telemetry.JournalPath != "" {
		return c.Telemetry.JournalPath
	}
	return c.PersistPath("telemetry-journal")
}

func (c *Config) LogLevel() log2.Level {
	if c.Log.Debug {
		return log2.LDebug
	}
	return log2.LInfo
}
