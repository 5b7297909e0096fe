// Package store is the durable persistence layer (C1): tasks, projects,
// PRDs, personas, artifacts, task↔artifact links, and the ANN similarity
// index backing them.
package store

import (
	"context"

	"github.com/rigger/core/internal/types"
)

// EntityKind distinguishes which table a Filter/SortKey applies to.
type EntityKind string

const (
	EntityTask     EntityKind = "task"
	EntityProject  EntityKind = "project"
	EntityArtifact EntityKind = "artifact"
)

// Filter is a sum type over the supported lookups for an entity kind
// (spec §4.1). Exactly the fields relevant to Kind are meaningful; callers
// build one with the ByID/ByProjectID/ByStatus/ByAgentPersona/BySourceType/All
// constructors below.
type Filter struct {
	Kind        EntityKind
	ById        string
	ByProjectID string
	ByStatus    types.Status
	ByAgentPersona string
	BySourceType   types.SourceType
	All         bool
}

func ByID(kind EntityKind, id string) Filter          { return Filter{Kind: kind, ById: id} }
func ByProjectID(kind EntityKind, id string) Filter   { return Filter{Kind: kind, ByProjectID: id} }
func ByStatus(status types.Status) Filter             { return Filter{Kind: EntityTask, ByStatus: status} }
func ByAgentPersona(persona string) Filter             { return Filter{Kind: EntityTask, ByAgentPersona: persona} }
func BySourceType(kind EntityKind, st types.SourceType) Filter {
	return Filter{Kind: kind, BySourceType: st}
}
func All(kind EntityKind) Filter { return Filter{Kind: kind, All: true} }

// SortKey is a small per-entity enumeration of sortable fields.
type SortKey string

const (
	SortCreatedAtDesc SortKey = "created_at_desc"
	SortCreatedAtAsc  SortKey = "created_at_asc"
	SortSortOrderAsc  SortKey = "sort_order_asc"
	SortNameAsc       SortKey = "name_asc"
)

// FindOptions bounds and orders a Find call.
type FindOptions struct {
	Sort   []SortKey
	Limit  int
	Offset int
}

// SimilarityResult pairs an artifact with its cosine distance to the query
// (spec §4.1's similarity search contract).
type SimilarityResult struct {
	Artifact   types.Artifact
	Distance   float64
}

// Similarity derives the [0,1]-clamped similarity score from distance.
func (r SimilarityResult) Similarity() float64 {
	s := 1 - r.Distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Store is the persistence port consumed by every other component. All
// methods are safe for concurrent use; writes serialize internally (spec
// §4.1 concurrency contract).
type Store interface {
	SaveTask(ctx context.Context, t types.Task) (types.Task, error)
	SaveProject(ctx context.Context, p types.Project) (types.Project, error)
	SaveArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error)
	SaveLink(ctx context.Context, l types.TaskArtifact) error

	FindOneTask(ctx context.Context, f Filter) (types.Task, bool, error)
	FindTasks(ctx context.Context, f Filter, opts FindOptions) ([]types.Task, error)
	FindOneProject(ctx context.Context, f Filter) (types.Project, bool, error)
	FindProjects(ctx context.Context, f Filter, opts FindOptions) ([]types.Project, error)
	FindOneArtifact(ctx context.Context, f Filter) (types.Artifact, bool, error)
	FindArtifacts(ctx context.Context, f Filter, opts FindOptions) ([]types.Artifact, error)

	DeleteTask(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error
	DeleteArtifact(ctx context.Context, id string) error

	// FindSimilar returns up to limit artifacts ordered by ascending cosine
	// distance, optionally filtered by threshold and projectID (spec §4.1).
	// Returns CodeFeatureUnavailable if the ANN index is unavailable.
	FindSimilar(ctx context.Context, queryEmbedding []float32, limit int, threshold *float64, projectID string) ([]SimilarityResult, error)

	// IndexDimension reports the configured ANN vector width for a project.
	IndexDimension(projectID string) int

	Close() error
}
