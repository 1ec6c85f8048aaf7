package narrative

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/retrolens/retro-engine/internal/models"
)

// Fallback is a deterministic Generator used when no LLM is configured. It
// composes its output purely from trend and hypothesis fields, so report
// generation never depends on network availability.
type Fallback struct{}

// Headline names the largest significant trend together with the top
// hypothesis, or a neutral line when there is nothing to highlight.
func (Fallback) Headline(_ context.Context, trends []models.TrendResult, hypotheses []models.Hypothesis) (string, error) {
	if len(hypotheses) == 0 {
		return "Sprint metrics analysis: Review key trends and patterns", nil
	}

	top := hypotheses[0]

	var biggest *models.TrendResult
	for i := range trends {
		if !trends[i].IsSignificant {
			continue
		}
		if biggest == nil || math.Abs(trends[i].ChangePercent) > math.Abs(biggest.ChangePercent) {
			biggest = &trends[i]
		}
	}
	if biggest != nil {
		return fmt.Sprintf("%s %s %.0f%% - %s",
			titleCase(biggest.MetricName), biggest.Direction, math.Abs(biggest.ChangePercent), top.Title), nil
	}

	return top.Title + " - Key insight from recent sprints", nil
}

// RetroQuestions returns exactly three questions anchored on the top
// hypothesis, or the classic retro trio when there is none.
func (Fallback) RetroQuestions(_ context.Context, hypotheses []models.Hypothesis) ([]string, error) {
	if len(hypotheses) == 0 {
		return []string{
			"What went well in the last sprint?",
			"What could we improve?",
			"What will we try differently next sprint?",
		}, nil
	}

	top := hypotheses[0]
	return []string{
		fmt.Sprintf("What factors are contributing to %s?", strings.ToLower(top.Title)),
		"How is this pattern affecting our team's effectiveness and well-being?",
		"What's one experiment we can run next sprint to address this issue?",
	}, nil
}

// EnhanceHypothesis returns the description untouched.
func (Fallback) EnhanceHypothesis(_ context.Context, h models.Hypothesis, _ string) (string, error) {
	return h.Description, nil
}

// titleCase turns a snake_case metric name into a display title.
func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
