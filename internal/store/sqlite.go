// SQLite-backed Store implementation, built on a modernc.org/sqlite +
// vec0-compat pairing. A single *sql.DB (effectively one connection for
// embedded use) arbitrates all writes, matching spec §4.1's concurrency
// contract.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

const vecTableName = "rigger_vec"

// SQLiteStore is the concrete Store implementation.
type SQLiteStore struct {
	mu           sync.Mutex
	db           *sql.DB
	dimensions   map[string]int // project id -> configured ANN dimension
	vecAvailable bool
}

// Open opens (creating if necessary) a SQLite-backed store at path, applies
// pending migrations, registers the vec0 compat virtual table, and rebuilds
// the ANN index from persisted artifacts (spec §4.1, §5).
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	registerVecCompat()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, types.Wrap(types.CodeInternal, "open sqlite store", err)
	}
	db.SetMaxOpenConns(1) // single connection: serializes writes per spec §4.1

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, types.Wrap(types.CodeInternal, "apply migrations", err)
	}

	s := &SQLiteStore{db: db, dimensions: map[string]int{}}

	if _, err := db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding, artifact_id, project_id)`, vecTableName)); err != nil {
		logging.Store.Warn("vec0 index unavailable, similarity search degraded: %v", err)
		s.vecAvailable = false
	} else {
		s.vecAvailable = true
		if err := s.backfillVecIndex(ctx); err != nil {
			logging.Store.Warn("vec0 backfill failed: %v", err)
		}
	}

	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// IndexDimension reports the configured ANN vector width for a project,
// defaulting to 768 per spec §3 when unconfigured.
func (s *SQLiteStore) IndexDimension(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dimensions[projectID]; ok {
		return d
	}
	return 768
}

func (s *SQLiteStore) backfillVecIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, embedding FROM artifacts WHERE embedding IS NOT NULL`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, projectID string
		var emb []byte
		if err := rows.Scan(&id, &projectID, &emb); err != nil {
			return err
		}
		if len(emb) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (embedding, artifact_id, project_id) VALUES (?, ?, ?)`, vecTableName),
			emb, id, projectID); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ---- JSON helpers for list-typed task columns ----

func marshalList(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func unmarshalEnhancements(s string) []types.Enhancement {
	if s == "" {
		return nil
	}
	var out []types.Enhancement
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func unmarshalTests(s string) []types.ComprehensionTest {
	if s == "" {
		return nil
	}
	var out []types.ComprehensionTest
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// ---- Task ----

func (s *SQLiteStore) SaveTask(ctx context.Context, t types.Task) (types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	var dueDate sql.NullString
	if t.DueDate != nil {
		dueDate = sql.NullString{String: t.DueDate.UTC().Format(time.RFC3339), Valid: true}
	}
	var sortOrder sql.NullInt64
	if t.SortOrder != nil {
		sortOrder = sql.NullInt64{Int64: int64(*t.SortOrder), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, agent_persona, due_date,
			source_transcript_id, source_prd_id, parent_task_id, subtask_ids,
			dependencies, context_files, complexity, reasoning, completion_summary,
			enhancements, comprehension_tests, sort_order, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description, status=excluded.status,
			agent_persona=excluded.agent_persona, due_date=excluded.due_date,
			source_transcript_id=excluded.source_transcript_id, source_prd_id=excluded.source_prd_id,
			parent_task_id=excluded.parent_task_id, subtask_ids=excluded.subtask_ids,
			dependencies=excluded.dependencies, context_files=excluded.context_files,
			complexity=excluded.complexity, reasoning=excluded.reasoning,
			completion_summary=excluded.completion_summary, enhancements=excluded.enhancements,
			comprehension_tests=excluded.comprehension_tests, sort_order=excluded.sort_order,
			updated_at=excluded.updated_at`,
		t.ID, t.Title, t.Description, string(t.Status), t.AgentPersona, dueDate,
		t.SourceTranscriptID, t.SourcePRDID, t.ParentTaskID, marshalList(t.SubtaskIDs),
		marshalList(t.Dependencies), marshalList(t.ContextFiles), t.Complexity, t.Reasoning,
		t.CompletionSummary, marshalList(t.Enhancements), marshalList(t.ComprehensionTests),
		sortOrder, t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return types.Task{}, types.Wrap(types.CodeInternal, "save task", err)
	}
	return t, nil
}

func scanTask(row interface{ Scan(...any) error }) (types.Task, error) {
	var t types.Task
	var status, subtaskIDs, dependencies, contextFiles, enhancements, tests string
	var dueDate, createdAt, updatedAt sql.NullString
	var sortOrder sql.NullInt64
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.AgentPersona, &dueDate,
		&t.SourceTranscriptID, &t.SourcePRDID, &t.ParentTaskID, &subtaskIDs,
		&dependencies, &contextFiles, &t.Complexity, &t.Reasoning, &t.CompletionSummary,
		&enhancements, &tests, &sortOrder, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.Status = types.Status(status)
	t.SubtaskIDs = unmarshalStrings(subtaskIDs)
	t.Dependencies = unmarshalStrings(dependencies)
	t.ContextFiles = unmarshalStrings(contextFiles)
	t.Enhancements = unmarshalEnhancements(enhancements)
	t.ComprehensionTests = unmarshalTests(tests)
	if dueDate.Valid {
		if parsed, err := time.Parse(time.RFC3339, dueDate.String); err == nil {
			t.DueDate = &parsed
		}
	}
	if sortOrder.Valid {
		v := int(sortOrder.Int64)
		t.SortOrder = &v
	}
	if createdAt.Valid {
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	if updatedAt.Valid {
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String)
	}
	return t, nil
}

const taskColumns = `id, title, description, status, agent_persona, due_date,
	source_transcript_id, source_prd_id, parent_task_id, subtask_ids,
	dependencies, context_files, complexity, reasoning, completion_summary,
	enhancements, comprehension_tests, sort_order, created_at, updated_at`

func (s *SQLiteStore) FindOneTask(ctx context.Context, f Filter) (types.Task, bool, error) {
	where, args := taskFilterClause(f)
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+where+` LIMIT 1`, args...)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return types.Task{}, false, nil
	}
	if err != nil {
		return types.Task{}, false, types.Wrap(types.CodeInternal, "find task", err)
	}
	return t, true, nil
}

func (s *SQLiteStore) FindTasks(ctx context.Context, f Filter, opts FindOptions) ([]types.Task, error) {
	where, args := taskFilterClause(f)
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + where + orderByClause(opts.Sort)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Wrap(types.CodeInternal, "find tasks", err)
	}
	defer rows.Close()
	var out []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, types.Wrap(types.CodeInternal, "scan task", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func taskFilterClause(f Filter) (string, []any) {
	switch {
	case f.ById != "":
		return "id = ?", []any{f.ById}
	case f.ByStatus != "":
		return "status = ?", []any{string(f.ByStatus)}
	case f.ByAgentPersona != "":
		return "agent_persona = ?", []any{f.ByAgentPersona}
	case f.ByProjectID != "":
		// Tasks don't carry project_id directly in this schema; scoping by
		// project happens through source_prd_id association at the caller.
		return "source_prd_id = ?", []any{f.ByProjectID}
	default:
		return "1=1", nil
	}
}

func orderByClause(sorts []SortKey) string {
	for _, sk := range sorts {
		switch sk {
		case SortCreatedAtDesc:
			return " ORDER BY created_at DESC"
		case SortCreatedAtAsc:
			return " ORDER BY created_at ASC"
		case SortSortOrderAsc:
			return " ORDER BY sort_order ASC"
		case SortNameAsc:
			return " ORDER BY title ASC"
		}
	}
	return " ORDER BY created_at DESC"
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return types.Wrap(types.CodeInternal, "delete task", err)
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM task_artifacts WHERE task_id = ?`, id)
	return nil
}

// ---- Project ----

func (s *SQLiteStore) SaveProject(ctx context.Context, p types.Project) (types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Dimension == 0 {
		p.Dimension = 768
	}
	if p.ScanConfig.VectorDimension == 0 {
		p.ScanConfig = types.DefaultScanConfig(p.Dimension)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, prd_ids, dimension, scan_config, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, prd_ids=excluded.prd_ids,
			dimension=excluded.dimension, scan_config=excluded.scan_config, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Description, marshalList(p.PRDIDs), p.Dimension, marshalList(p.ScanConfig),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return types.Project{}, types.Wrap(types.CodeInternal, "save project", err)
	}
	s.dimensions[p.ID] = p.Dimension
	return p, nil
}

func scanProject(row interface{ Scan(...any) error }) (types.Project, error) {
	var p types.Project
	var prdIDs, scanConfig, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &prdIDs, &p.Dimension, &scanConfig, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.PRDIDs = unmarshalStrings(prdIDs)
	p.ScanConfig = unmarshalScanConfig(scanConfig, p.Dimension)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

func unmarshalScanConfig(s string, dimension int) types.ScanConfig {
	var out types.ScanConfig
	if s != "" {
		_ = json.Unmarshal([]byte(s), &out)
	}
	if out.VectorDimension == 0 {
		out = types.DefaultScanConfig(dimension)
	}
	return out
}

const projectColumns = `id, name, description, prd_ids, dimension, scan_config, created_at, updated_at`

func (s *SQLiteStore) FindOneProject(ctx context.Context, f Filter) (types.Project, bool, error) {
	var where string
	var args []any
	switch {
	case f.ById != "":
		where, args = "id = ?", []any{f.ById}
	default:
		where = "1=1"
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE `+where+` LIMIT 1`, args...)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return types.Project{}, false, nil
	}
	if err != nil {
		return types.Project{}, false, types.Wrap(types.CodeInternal, "find project", err)
	}
	s.mu.Lock()
	s.dimensions[p.ID] = p.Dimension
	s.mu.Unlock()
	return p, true, nil
}

func (s *SQLiteStore) FindProjects(ctx context.Context, f Filter, opts FindOptions) ([]types.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1` + orderByClause(opts.Sort)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, types.Wrap(types.CodeInternal, "find projects", err)
	}
	defer rows.Close()
	var out []types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, types.Wrap(types.CodeInternal, "scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM artifacts WHERE project_id = ?`, id)
	if err != nil {
		return types.Wrap(types.CodeInternal, "list project artifacts", err)
	}
	var artifactIDs []string
	for rows.Next() {
		var aid string
		if err := rows.Scan(&aid); err == nil {
			artifactIDs = append(artifactIDs, aid)
		}
	}
	rows.Close()

	for _, aid := range artifactIDs {
		s.deleteArtifactLocked(ctx, aid)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return types.Wrap(types.CodeInternal, "delete project", err)
	}
	delete(s.dimensions, id)
	return nil
}

// ---- Artifact ----

func (s *SQLiteStore) SaveArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	metaJSON := "{}"
	if a.Metadata != nil {
		if b, err := json.Marshal(a.Metadata); err == nil {
			metaJSON = string(b)
		}
	}
	var embBytes []byte
	if len(a.Embedding) > 0 {
		embBytes = encodeFloat32(a.Embedding)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, project_id, source_id, source_type, content, embedding,
			metadata, binary_content, mime_type, source_url, page_number, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			project_id=excluded.project_id, source_id=excluded.source_id,
			source_type=excluded.source_type, content=excluded.content, embedding=excluded.embedding,
			metadata=excluded.metadata, binary_content=excluded.binary_content,
			mime_type=excluded.mime_type, source_url=excluded.source_url,
			page_number=excluded.page_number`,
		a.ID, a.ProjectID, a.SourceID, string(a.SourceType), a.Content, embBytes,
		metaJSON, a.BinaryContent, a.MimeType, a.SourceURL, a.PageNumber,
		a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return types.Artifact{}, types.Wrap(types.CodeInternal, "save artifact metadata", err)
	}

	// The ANN index is best-effort: metadata persistence above must succeed
	// even if this fails (spec §4.1 "Embedded vs. fallback").
	if s.vecAvailable && len(embBytes) > 0 {
		s.vecTableMu().deleteByArtifactID(a.ID)
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (embedding, artifact_id, project_id) VALUES (?, ?, ?)`, vecTableName),
			embBytes, a.ID, a.ProjectID); err != nil {
			logging.Store.Warn("vec0 index upsert failed for artifact %s: %v", a.ID, err)
		}
	}
	return a, nil
}

func (s *SQLiteStore) vecTableMu() *vecTable {
	vecTablesMu.RLock()
	defer vecTablesMu.RUnlock()
	return vecTables[vecTableName]
}

func scanArtifact(row interface{ Scan(...any) error }) (types.Artifact, error) {
	var a types.Artifact
	var sourceType, metaJSON, createdAt string
	var embBytes []byte
	err := row.Scan(&a.ID, &a.ProjectID, &a.SourceID, &sourceType, &a.Content, &embBytes,
		&metaJSON, &a.BinaryContent, &a.MimeType, &a.SourceURL, &a.PageNumber, &createdAt)
	if err != nil {
		return a, err
	}
	a.SourceType = types.SourceType(sourceType)
	if len(embBytes) > 0 {
		f, err := decodeFloat32(embBytes)
		if err == nil {
			a.Embedding = f
		}
	}
	if metaJSON != "" && metaJSON != "{}" {
		var m map[string]any
		if json.Unmarshal([]byte(metaJSON), &m) == nil {
			a.Metadata = m
		}
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

const artifactColumns = `id, project_id, source_id, source_type, content, embedding,
	metadata, binary_content, mime_type, source_url, page_number, created_at`

func (s *SQLiteStore) FindOneArtifact(ctx context.Context, f Filter) (types.Artifact, bool, error) {
	where, args := artifactFilterClause(f)
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE `+where+` LIMIT 1`, args...)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return types.Artifact{}, false, nil
	}
	if err != nil {
		return types.Artifact{}, false, types.Wrap(types.CodeInternal, "find artifact", err)
	}
	return a, true, nil
}

func (s *SQLiteStore) FindArtifacts(ctx context.Context, f Filter, opts FindOptions) ([]types.Artifact, error) {
	where, args := artifactFilterClause(f)
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE ` + where + orderByClause(opts.Sort)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Wrap(types.CodeInternal, "find artifacts", err)
	}
	defer rows.Close()
	var out []types.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, types.Wrap(types.CodeInternal, "scan artifact", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func artifactFilterClause(f Filter) (string, []any) {
	switch {
	case f.ById != "":
		return "id = ?", []any{f.ById}
	case f.ByProjectID != "":
		return "project_id = ?", []any{f.ByProjectID}
	case f.BySourceType != "":
		return "source_type = ?", []any{string(f.BySourceType)}
	default:
		return "1=1", nil
	}
}

func (s *SQLiteStore) DeleteArtifact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteArtifactLocked(ctx, id)
	return nil
}

func (s *SQLiteStore) deleteArtifactLocked(ctx context.Context, id string) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM task_artifacts WHERE artifact_id = ?`, id)
	if s.vecAvailable {
		if t := s.vecTableMu(); t != nil {
			t.deleteByArtifactID(id)
		}
	}
}

// ---- TaskArtifact link ----

func (s *SQLiteStore) SaveLink(ctx context.Context, l types.TaskArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_artifacts (task_id, artifact_id, relevance_score, created_at)
		VALUES (?,?,?,?)
		ON CONFLICT(task_id, artifact_id) DO UPDATE SET
			relevance_score=excluded.relevance_score`,
		l.TaskID, l.ArtifactID, l.RelevanceScore, l.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return types.Wrap(types.CodeInternal, "save task-artifact link", err)
	}
	return nil
}

// ---- Similarity search ----

// FindSimilar implements spec §4.1's contract: up to limit artifacts ordered
// by ascending cosine distance, threshold-filtered, and restricted to
// projectID when it is non-empty (an empty projectID ranks every indexed
// row). Ranking runs in Go against the in-memory vec index
// (FindSimilarRows) rather than through a SQL scan; the index keeps rows
// partitioned by project so a scoped call walks only that project's rows.
func (s *SQLiteStore) FindSimilar(ctx context.Context, queryEmbedding []float32, limit int, threshold *float64, projectID string) ([]SimilarityResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	if !s.vecAvailable {
		return nil, types.NewError(types.CodeFeatureUnavailable, "ANN index not available")
	}

	tbl := s.vecTableMu()
	if tbl == nil {
		return nil, types.NewError(types.CodeFeatureUnavailable, "ANN index not available")
	}
	hits, err := tbl.FindSimilarRows(projectID, queryEmbedding, limit, threshold)
	if err != nil {
		return nil, types.Wrap(types.CodeInternal, "similarity query", err)
	}

	out := make([]SimilarityResult, 0, len(hits))
	for _, h := range hits {
		a, ok, err := s.FindOneArtifact(ctx, ByID(EntityArtifact, h.artifactID))
		if err != nil || !ok {
			continue
		}
		out = append(out, SimilarityResult{Artifact: a, Distance: h.distance})
	}
	return out, nil
}
