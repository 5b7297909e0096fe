// Package provider implements C3: the four capability ports (text
// enhancement, structured extraction, embedding, vision), role-specialized
// model selection, and the deterministic fallback discipline that keeps a
// provider failure from ever failing an orchestration run (spec §4.2).
package provider

import (
	"context"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/types"
)

// TextEnhancement produces one structured suggestion refining a task
// (spec §4.2.1).
type TextEnhancement interface {
	Enhance(ctx context.Context, task types.Task, ragContext string) (types.Enhancement, error)
}

// Schema describes the JSON shape StructuredExtraction must return,
// identified by name for error messages and logging.
type Schema struct {
	Name   string
	Fields []string // top-level field names expected in the result object
}

// StructuredExtraction returns a value satisfying schema, parsed from the
// provider's response via the three-stage contract in spec §4.2.
type StructuredExtraction interface {
	Extract(ctx context.Context, prompt string, schema Schema) (map[string]any, error)
}

// Embedding generates dense vectors for text (spec §4.2.3).
type Embedding interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VisionDescription is the result of describing an image or page.
type VisionDescription struct {
	Description string
	ElapsedMS   int64
}

// Vision describes images and document pages (spec §4.2.4).
type Vision interface {
	Describe(ctx context.Context, base64Data, mimeType, context string) (VisionDescription, error)
	DescribePage(ctx context.Context, pageImageBase64 string, pageNo int, context string) (VisionDescription, error)
}

// Capability names one of the four provider ports, used by the
// (provider, capability) dispatch table (spec §9 "Dynamic capability
// dispatch").
type Capability string

const (
	CapabilityTextEnhancement     Capability = "text_enhancement"
	CapabilityStructuredExtraction Capability = "structured_extraction"
	CapabilityEmbedding           Capability = "embedding"
	CapabilityVision              Capability = "vision"
)

// Set bundles the four ports behind the role-aware selection strategy
// consumed by the orchestration graph and artifact engine.
type Set struct {
	textEnhancement map[string]TextEnhancement     // keyed by model id
	extraction      map[string]StructuredExtraction
	embedding       map[string]Embedding
	vision          map[string]Vision
	cfg             config.Config
}

// NewSet constructs an empty port set; adapters are registered with
// Register* and resolved per-call via the role→model table in cfg.
func NewSet(cfg config.Config) *Set {
	return &Set{
		textEnhancement: map[string]TextEnhancement{},
		extraction:      map[string]StructuredExtraction{},
		embedding:       map[string]Embedding{},
		vision:          map[string]Vision{},
		cfg:             cfg,
	}
}

func (s *Set) RegisterTextEnhancement(model string, adapter TextEnhancement) {
	s.textEnhancement[model] = adapter
}
func (s *Set) RegisterExtraction(model string, adapter StructuredExtraction) {
	s.extraction[model] = adapter
}
func (s *Set) RegisterEmbedding(model string, adapter Embedding) { s.embedding[model] = adapter }
func (s *Set) RegisterVision(model string, adapter Vision)       { s.vision[model] = adapter }

// resolve maps a role to the model id the config names for it.
func (s *Set) resolve(role config.Role) string {
	return s.cfg.ModelFor(role).Model
}

// TextEnhancementFor resolves the TextEnhancement adapter for role, or
// CodeFeatureUnavailable if no adapter is registered for the resolved model.
func (s *Set) TextEnhancementFor(role config.Role) (TextEnhancement, error) {
	model := s.resolve(role)
	if a, ok := s.textEnhancement[model]; ok {
		return a, nil
	}
	return nil, types.NewError(types.CodeFeatureUnavailable, "no text enhancement adapter for model "+model)
}

// ExtractionFor resolves the StructuredExtraction adapter for role.
func (s *Set) ExtractionFor(role config.Role) (StructuredExtraction, error) {
	model := s.resolve(role)
	if a, ok := s.extraction[model]; ok {
		return a, nil
	}
	return nil, types.NewError(types.CodeFeatureUnavailable, "no structured extraction adapter for model "+model)
}

// EmbeddingAdapter returns the default embedding adapter (embedding has no
// role specialisation in spec §4.2; it is always invoked directly by C4).
func (s *Set) EmbeddingAdapter() (Embedding, error) {
	model := s.cfg.DefaultModel.Model
	if a, ok := s.embedding[model]; ok {
		return a, nil
	}
	for _, a := range s.embedding {
		return a, nil // fall back to whichever embedding adapter is registered
	}
	return nil, types.NewError(types.CodeFeatureUnavailable, "no embedding adapter registered")
}

// VisionFor resolves the Vision adapter for role.
func (s *Set) VisionFor(role config.Role) (Vision, error) {
	model := s.resolve(role)
	if a, ok := s.vision[model]; ok {
		return a, nil
	}
	return nil, types.NewError(types.CodeFeatureUnavailable, "no vision adapter for model "+model)
}
