// Package narrative produces the human-facing text of a report: the
// headline and the retrospective questions. An LLM-backed generator is used
// when configured; a deterministic fallback covers everything else.
package narrative

import (
	"context"
	"fmt"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

// Generator produces narrative text from analysis results.
type Generator interface {
	Headline(ctx context.Context, trends []models.TrendResult, hypotheses []models.Hypothesis) (string, error)
	RetroQuestions(ctx context.Context, hypotheses []models.Hypothesis) ([]string, error)
	// EnhanceHypothesis rewrites a hypothesis description for a retro
	// audience. Generators without that ability return the description
	// unchanged.
	EnhanceHypothesis(ctx context.Context, h models.Hypothesis, customContext string) (string, error)
}

// New builds a Generator from config. Provider "fallback", an unset provider
// or a missing API key all yield the deterministic fallback.
func New(cfg config.NarrativeConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "fallback":
		return Fallback{}, nil
	case "openai", "azure":
		if cfg.APIKey == "" {
			return Fallback{}, nil
		}
		return NewChatClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported narrative provider: %s", cfg.Provider)
	}
}
