// Package store opens the module store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/store/memory"
	"github.com/JonMunkholm/moduletrack/internal/store/postgres"
	"github.com/JonMunkholm/moduletrack/internal/store/sqlite"
)

// Store is a RecordStore that owns external resources.
type Store interface {
	core.RecordStore
	Close() error
	Ping(ctx context.Context) error
}

// Open connects the driver named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", config.DriverPostgres)
		return s, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened database", "driver", config.DriverSQLite, "path", cfg.SQLitePath)
		return s, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; modules are lost on exit")
		return memoryStore{memory.New()}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type memoryStore struct {
	*memory.Store
}

func (memoryStore) Close() error { return nil }

func (memoryStore) Ping(context.Context) error { return nil }
