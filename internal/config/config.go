// Package config loads the per-project .rigger/config.json (and an optional
// config.yaml override) and exposes the role→model lookup table, scan
// limits, and routing weights as plain swappable data (spec §4.2, §9, §6).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Role is a labelled purpose for an LM call (spec GLOSSARY).
type Role string

const (
	RoleRouter     Role = "Router"
	RoleEnhancer   Role = "Enhancer"
	RoleDecomposer Role = "Decomposer"
	RoleTester     Role = "Tester"
)

// ProviderModel names a concrete model on a concrete provider.
type ProviderModel struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

// RoutingConfig carries the SemanticRouter's complexity-score weights and
// decision threshold, resolved as configurable per spec §9's Open Question
// (the source's weights were ad hoc heuristics, not measured).
type RoutingConfig struct {
	// TitleLengthWeight scores longer titles as more complex.
	TitleLengthWeight float64 `json:"title_length_weight" yaml:"title_length_weight"`
	// ConjunctionWeight scores "and"/"with"/"then"-joined requirements.
	ConjunctionWeight float64 `json:"conjunction_weight" yaml:"conjunction_weight"`
	// KeywordWeight scores keyword classes like "refactor", "migrate",
	// "multi-region".
	KeywordWeight float64 `json:"keyword_weight" yaml:"keyword_weight"`
	// Threshold: score >= Threshold routes to Decompose, else Enhance.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultRouting matches the heuristic spec.md describes.
func DefaultRouting() RoutingConfig {
	return RoutingConfig{
		TitleLengthWeight: 0.05,
		ConjunctionWeight: 1.5,
		KeywordWeight:     2.0,
		Threshold:         7,
	}
}

// ScanLimits bounds directory scanning and web crawling (spec §4.3).
type ScanLimits struct {
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions"`
	MaxFileSizeBytes  int64    `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	RespectIgnoreFiles bool    `json:"respect_ignore_files" yaml:"respect_ignore_files"`
	CrawlMaxDepth     int      `json:"crawl_max_depth" yaml:"crawl_max_depth"`
	CrawlMaxPages     int      `json:"crawl_max_pages" yaml:"crawl_max_pages"`
	CrawlSameHostOnly bool     `json:"crawl_same_host_only" yaml:"crawl_same_host_only"`
}

// DefaultScanLimits are conservative defaults for local ingest.
func DefaultScanLimits() ScanLimits {
	return ScanLimits{
		AllowedExtensions:  []string{".md", ".txt", ".go", ".rs", ".py", ".js", ".ts"},
		MaxFileSizeBytes:   5 * 1024 * 1024,
		RespectIgnoreFiles: true,
		CrawlMaxDepth:      2,
		CrawlMaxPages:      50,
		CrawlSameHostOnly:  true,
	}
}

// RetrievalThresholds are the adaptive similarity thresholds per call site
// (spec §4.4).
type RetrievalThresholds struct {
	Search       float64 `json:"search" yaml:"search"`
	Decomposition float64 `json:"decomposition" yaml:"decomposition"`
	EnhancementLimit int  `json:"enhancement_limit" yaml:"enhancement_limit"`
	DecompositionLimit int `json:"decomposition_limit" yaml:"decomposition_limit"`
}

// DefaultRetrievalThresholds matches spec §4.4's defaults.
func DefaultRetrievalThresholds() RetrievalThresholds {
	return RetrievalThresholds{
		Search:             0.5,
		Decomposition:      0.7,
		EnhancementLimit:   5,
		DecompositionLimit: 2,
	}
}

// Limits bounds run-level resource use (spec §5).
type Limits struct {
	RunWallClockBudgetSeconds int `json:"run_wall_clock_budget_seconds" yaml:"run_wall_clock_budget_seconds"`
	BroadcastChannelCapacity  int `json:"broadcast_channel_capacity" yaml:"broadcast_channel_capacity"`
}

// DefaultLimits matches spec §5's stated defaults (10 minute budget, 1000
// event capacity).
func DefaultLimits() Limits {
	return Limits{
		RunWallClockBudgetSeconds: 600,
		BroadcastChannelCapacity:  1000,
	}
}

// Config is the fully resolved, per-project configuration persisted at
// .rigger/config.json (spec §6's on-disk layout).
type Config struct {
	VectorDimension int                  `json:"vector_dimension" yaml:"vector_dimension"`
	RoleModels      map[Role]ProviderModel `json:"role_models" yaml:"role_models"`
	DefaultModel    ProviderModel        `json:"default_model" yaml:"default_model"`
	Routing         RoutingConfig        `json:"routing" yaml:"routing"`
	ScanLimits      ScanLimits           `json:"scan_limits" yaml:"scan_limits"`
	Retrieval       RetrievalThresholds  `json:"retrieval" yaml:"retrieval"`
	Limits          Limits               `json:"limits" yaml:"limits"`
}

// Default returns a complete, usable configuration with no role
// specialisation beyond the provider default.
func Default() Config {
	return Config{
		VectorDimension: 768,
		RoleModels:      map[Role]ProviderModel{},
		DefaultModel:    ProviderModel{Provider: "genai", Model: "gemini-2.0-flash"},
		Routing:         DefaultRouting(),
		ScanLimits:      DefaultScanLimits(),
		Retrieval:       DefaultRetrievalThresholds(),
		Limits:          DefaultLimits(),
	}
}

// ModelFor resolves a role to a concrete provider/model, falling back to the
// provider's default when the role is unspecialised (spec §4.2, §9).
func (c Config) ModelFor(role Role) ProviderModel {
	if pm, ok := c.RoleModels[role]; ok && pm.Model != "" {
		return pm
	}
	return c.DefaultModel
}

// Load reads .rigger/config.json under root, then merges .rigger/config.yaml
// on top of it if present. Either file may be absent; Load never fails for a
// missing file, only for a malformed one that exists.
func Load(root string) (Config, error) {
	cfg := Default()

	jsonPath := filepath.Join(root, ".rigger", "config.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	yamlPath := filepath.Join(root, ".rigger", "config.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	return cfg, nil
}
