// Package admin provides administrative operations for database management.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/moduletrack/internal/core"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// ModuleDeleter is the part of core.Service a reset needs.
type ModuleDeleter interface {
	ListModules(ctx context.Context, f core.Filter) ([]core.Module, error)
	DeleteModules(ctx context.Context, keys []string) (int, error)
}

// ResetAll deletes every stored module and returns how many were removed.
// This is a destructive operation - use with caution.
func ResetAll(ctx context.Context, svc ModuleDeleter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	mods, err := svc.ListModules(ctx, core.Filter{})
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	if len(mods) == 0 {
		return 0, nil
	}

	keys := make([]string, len(mods))
	for i, m := range mods {
		keys[i] = m.ModuleNo
	}
	n, err := svc.DeleteModules(ctx, keys)
	if err != nil {
		return n, fmt.Errorf("reset: %w", err)
	}
	slog.Warn("all modules deleted", "count", n)
	return n, nil
}
