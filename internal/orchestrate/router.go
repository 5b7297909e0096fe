package orchestrate

import (
	"strings"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/types"
)

// conjunctionMarkers are joiners whose presence in a task title/description
// suggests multiple bundled pieces of work (spec §4.6 SemanticRouter).
var conjunctionMarkers = []string{" and ", " with ", " then ", ", then", "; "}

// complexityKeywords are terms that historically correlate with work that
// needs decomposition rather than a single enhancement pass.
var complexityKeywords = []string{"refactor", "migrate", "migration", "multi-region", "rearchitect", "overhaul", "redesign"}

// ScoreComplexity computes the SemanticRouter's complexity score for a task
// from its title and description using cfg's weights (spec §9's Open
// Question resolution: the weights and threshold are configurable data, not
// a fixed formula).
func ScoreComplexity(task types.Task, cfg config.RoutingConfig) float64 {
	text := strings.ToLower(task.Title + " " + task.Description)

	score := float64(len(task.Title)) * cfg.TitleLengthWeight

	for _, marker := range conjunctionMarkers {
		if strings.Contains(text, marker) {
			score += cfg.ConjunctionWeight
		}
	}
	for _, kw := range complexityKeywords {
		if strings.Contains(text, kw) {
			score += cfg.KeywordWeight
		}
	}
	return score
}

// Route classifies a task as Enhance or Decompose against cfg.Threshold.
func Route(task types.Task, cfg config.RoutingConfig) (types.RoutingDecision, float64) {
	score := ScoreComplexity(task, cfg)
	if score >= cfg.Threshold {
		return types.RouteDecompose, score
	}
	return types.RouteEnhance, score
}
