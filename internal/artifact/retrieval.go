package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

// CallSite names which orchestration step is requesting context, selecting
// the adaptive similarity threshold and result cap (spec §4.4).
type CallSite string

const (
	CallSiteSearch        CallSite = "search"
	CallSiteEnhancement   CallSite = "enhancement"
	CallSiteDecomposition CallSite = "decomposition"
)

// thresholdAndLimit resolves a CallSite to its configured similarity
// threshold and result-count cap.
func thresholdAndLimit(cfg config.RetrievalThresholds, site CallSite) (float64, int) {
	switch site {
	case CallSiteEnhancement:
		return cfg.Search, cfg.EnhancementLimit
	case CallSiteDecomposition:
		return cfg.Decomposition, cfg.DecompositionLimit
	default:
		return cfg.Search, cfg.EnhancementLimit
	}
}

// Search embeds query and returns the top matching artifacts for the given
// call site, scoped to projectID (spec §4.4, §8 "vector recall").
func (e *Engine) Search(ctx context.Context, projectID, query string, site CallSite, cfg config.RetrievalThresholds) ([]store.SimilarityResult, error) {
	embedder, err := e.providers.EmbeddingAdapter()
	if err != nil {
		logging.Artifact.Warn("search: no embedding adapter available, returning empty results: %v", err)
		return nil, nil
	}

	vec, err := embedder.Generate(ctx, query)
	if err != nil {
		logging.Artifact.Warn("search: query embedding failed, returning empty results: %v", err)
		return nil, nil
	}

	threshold, limit := thresholdAndLimit(cfg, site)
	results, err := e.store.FindSimilar(ctx, vec, limit, &threshold, projectID)
	if err != nil {
		if types.Is(err, types.CodeFeatureUnavailable) {
			logging.Artifact.Warn("search: similarity index unavailable, returning empty results")
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}

// ContextBlock renders retrieved artifacts into the stable-header context
// block format consumed by the provider prompts (spec §4.4). An empty
// results slice renders an explicit "no related context" header rather than
// an empty string, so downstream prompts never silently lose the section.
func ContextBlock(results []store.SimilarityResult) string {
	var b strings.Builder
	b.WriteString("## Related Context\n")
	if len(results) == 0 {
		b.WriteString("(no related context found)\n")
		return b.String()
	}
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s, similarity=%.2f] %s\n", i+1, r.Artifact.SourceType, r.Similarity(), strings.TrimSpace(r.Artifact.Content))
	}
	return b.String()
}
