package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	_, isBatcher := s.(core.Batcher)
	assert.True(t, isBatcher, "memory store should keep batch support")
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "db", "modules.db"),
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Create(context.Background(), core.Module{ModuleNo: "M1", Status: core.StatusPending})
	require.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unknown store driver")
}
