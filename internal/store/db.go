// Package store keeps vehicles and telemetry history in sqlite via gorm.
package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/c2link/log2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// pure Go sqlite, registers driver "sqlite"
	_ "modernc.org/sqlite"
)

const DefaultPath = "c2link.db"

// Memory is DSN of private in-memory database.
const Memory = ":memory:"

type Config struct {
	Path     string `hcl:"path"`
	LogDebug bool   `hcl:"log_debug"`
}

// Store implements types.VehicleStore and types.TelemetrySink.
type Store struct {
	db  *gorm.DB
	log *log2.Log
}

func Open(c Config, log *log2.Log) (*Store, error) {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	if path != Memory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Annotatef(err, "store dir=%s", dir)
			}
		}
	}

	level := gormlogger.Warn
	if c.LogDebug {
		level = gormlogger.Info
	}
	gormLog := gormlogger.New(log, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
	dialector := sqlite.Dialector{DriverName: "sqlite", DSN: path}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, errors.Annotatef(err, "store open path=%s", path)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Annotate(err, "store")
	}
	if path == Memory {
		// every connection would get separate empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL", "PRAGMA busy_timeout=5000"} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				return nil, errors.Annotatef(err, "store %s", pragma)
			}
		}
	}
	if err := db.AutoMigrate(&vehicleRow{}, &telemetryRow{}); err != nil {
		return nil, errors.Annotate(err, "store migrate")
	}
	log.Debugf("store path=%s", path)
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) tx(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }
