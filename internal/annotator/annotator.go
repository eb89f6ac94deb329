// Package annotator flags module records that look inconsistent, using a
// Gemini model when one is configured.
package annotator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
)

// Noop never flags anything. It is used when no API key is configured.
type Noop struct{}

// Evaluate always reports no anomaly.
func (Noop) Evaluate(context.Context, core.AnomalyInput) (core.AnomalyResult, error) {
	return core.AnomalyResult{}, nil
}

// New returns the annotator described by cfg: Gemini when it is enabled and
// has a key, otherwise Noop.
func New(ctx context.Context, cfg config.AnnotatorConfig) (core.Annotator, error) {
	if !cfg.Active() {
		slog.Info("anomaly annotator disabled", "enabled", cfg.Enabled, "has_key", cfg.APIKey != "")
		return Noop{}, nil
	}
	g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("annotator: %w", err)
	}
	slog.Info("anomaly annotator enabled", "model", cfg.Model)
	return g, nil
}
