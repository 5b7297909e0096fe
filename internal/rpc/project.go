package rpc

import (
	"context"
	"time"

	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

// CreateProject resolves a fresh ScanConfig for the project (spec §3
// supplement) rather than inheriting the deployment-wide scan defaults, so
// per-project overrides never require touching global config.
func (s *service) CreateProject(ctx context.Context, name, description string) (types.Project, error) {
	if name == "" {
		return types.Project{}, types.NewError(types.CodeInvalidArgument, "name is required")
	}
	now := time.Now()
	project := types.Project{
		Name:        name,
		Description: description,
		Dimension:   s.cfg.VectorDimension,
		ScanConfig:  types.DefaultScanConfig(s.cfg.VectorDimension),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.store.SaveProject(ctx, project)
}

// GetProjectContext synthesizes a ProjectContext summary (task counts by
// status, artifact count, most recent artifact's creation time as the last
// scan) used to prefix orchestration prompts with project-level framing
// (scan_config.rs's ProjectContext, spec §3 supplement). It is recomputed on
// every call rather than cached on the Project row, so it is never stale.
func (s *service) GetProjectContext(ctx context.Context, projectID string) (types.ProjectContext, error) {
	tasks, err := s.store.FindTasks(ctx, store.ByProjectID(store.EntityTask, projectID), store.FindOptions{})
	if err != nil {
		return types.ProjectContext{}, err
	}
	artifacts, err := s.store.FindArtifacts(ctx, store.ByProjectID(store.EntityArtifact, projectID), store.FindOptions{})
	if err != nil {
		return types.ProjectContext{}, err
	}

	byStatus := make(map[types.Status]int, len(tasks))
	for _, t := range tasks {
		byStatus[t.Status]++
	}
	var lastScan time.Time
	for _, a := range artifacts {
		if a.CreatedAt.After(lastScan) {
			lastScan = a.CreatedAt
		}
	}
	return types.ProjectContext{
		TasksByStatus: byStatus,
		ArtifactCount: len(artifacts),
		LastScanAt:    lastScan,
	}, nil
}
