// Package types holds the shared data model for the task orchestration and
// artifact retrieval core: tasks, projects, artifacts, and the transient
// ingest/orchestration state threaded between components.
package types

import "time"

// Status is a task's position in the orchestration state machine (spec §4.6).
type Status string

const (
	StatusTodo                     Status = "Todo"
	StatusPendingEnhancement       Status = "PendingEnhancement"
	StatusPendingDecomposition     Status = "PendingDecomposition"
	StatusInProgress               Status = "InProgress"
	StatusPendingComprehensionTest Status = "PendingComprehensionTest"
	StatusOrchestrationComplete    Status = "OrchestrationComplete"
	StatusDecomposed               Status = "Decomposed"
	StatusCompleted                Status = "Completed"
	StatusErrored                  Status = "Errored"
	StatusArchived                 Status = "Archived"
)

// statusTransitions is the legal-move table from spec §4.6. Any pair not
// listed here is rejected by CanTransition.
var statusTransitions = map[Status]map[Status]bool{
	StatusTodo: {
		StatusPendingEnhancement:   true,
		StatusPendingDecomposition: true,
		StatusInProgress:           true,
		StatusArchived:             true,
	},
	StatusPendingEnhancement: {
		StatusPendingComprehensionTest: true,
		StatusErrored:                  true,
	},
	StatusPendingDecomposition: {
		StatusDecomposed: true,
		StatusErrored:    true,
	},
	StatusPendingComprehensionTest: {
		StatusOrchestrationComplete: true,
		StatusErrored:               true,
	},
	StatusOrchestrationComplete: {
		StatusCompleted: true,
		StatusArchived:  true,
	},
	StatusDecomposed: {
		StatusCompleted: true,
		StatusArchived:  true,
	},
	StatusCompleted: {
		StatusArchived: true,
	},
	StatusErrored: {
		StatusTodo:     true,
		StatusArchived: true,
	},
}

// CanTransition reports whether moving from to is a legal status transition.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	moves, ok := statusTransitions[from]
	if !ok {
		return false
	}
	return moves[to]
}

// EnhancementType classifies a single structured suggestion produced by the
// TextEnhancement provider port.
type EnhancementType string

const (
	EnhancementClarify   EnhancementType = "clarify"
	EnhancementSpecify   EnhancementType = "specify"
	EnhancementDecompose EnhancementType = "decompose"
	EnhancementContext   EnhancementType = "context"
)

// Enhancement is a single append-only audit entry produced by the Enhance
// node.
type Enhancement struct {
	Type      EnhancementType `json:"enhancement_type"`
	Content   string          `json:"content"`
	Source    string          `json:"source"` // "llm" | "fallback"
	CreatedAt time.Time       `json:"created_at"`
}

// ComprehensionTestType is the kind of quiz the Tester role is asked for.
type ComprehensionTestType string

const (
	TestShortAnswer    ComprehensionTestType = "short_answer"
	TestMultipleChoice ComprehensionTestType = "multiple_choice"
)

// ComprehensionTest is a single append-only audit entry produced by the
// ComprehensionTest node.
type ComprehensionTest struct {
	Type      ComprehensionTestType `json:"test_type"`
	Prompt    string                `json:"prompt"`
	Answer    string                `json:"answer,omitempty"`
	Choices   []string              `json:"choices,omitempty"`
	Source    string                `json:"source"` // "llm" | "fallback"
	CreatedAt time.Time             `json:"created_at"`
}

// Task is the central unit of work routed through the orchestration graph.
type Task struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Status             Status    `json:"status"`
	AgentPersona       string    `json:"agent_persona,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	SourceTranscriptID string    `json:"source_transcript_id,omitempty"`
	SourcePRDID        string    `json:"source_prd_id,omitempty"`
	ParentTaskID       string    `json:"parent_task_id,omitempty"`
	SubtaskIDs         []string  `json:"subtask_ids,omitempty"`
	Dependencies       []string  `json:"dependencies,omitempty"`
	ContextFiles       []string  `json:"context_files,omitempty"`
	Complexity         int       `json:"complexity,omitempty"` // 1-10, 0 = unset
	Reasoning          string    `json:"reasoning,omitempty"`
	CompletionSummary  string    `json:"completion_summary,omitempty"`
	Enhancements       []Enhancement       `json:"enhancements,omitempty"`
	ComprehensionTests []ComprehensionTest `json:"comprehension_tests,omitempty"`
	SortOrder          *int      `json:"sort_order,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy of t for safe mutation by callers that
// must not alias a previously persisted value (GraphState's linear-ownership
// discipline, spec §9).
func (t Task) Clone() Task {
	c := t
	c.SubtaskIDs = append([]string(nil), t.SubtaskIDs...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.ContextFiles = append([]string(nil), t.ContextFiles...)
	c.Enhancements = append([]Enhancement(nil), t.Enhancements...)
	c.ComprehensionTests = append([]ComprehensionTest(nil), t.ComprehensionTests...)
	return c
}

// SourceType classifies where an Artifact's content originated.
type SourceType string

const (
	SourcePRD         SourceType = "PRD"
	SourceFile        SourceType = "File"
	SourceWebResearch SourceType = "WebResearch"
	SourceUserInput   SourceType = "UserInput"
	SourceImage       SourceType = "Image"
	SourcePDF         SourceType = "PDF"
)

// Artifact is a content chunk with its embedding, addressable by a stable
// SourceID (spec §3, §6).
type Artifact struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	SourceID      string         `json:"source_id"`
	SourceType    SourceType     `json:"source_type"`
	Content       string         `json:"content"`
	Embedding     []float32      `json:"embedding"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	BinaryContent []byte         `json:"binary_content,omitempty"`
	MimeType      string         `json:"mime_type,omitempty"`
	SourceURL     string         `json:"source_url,omitempty"`
	PageNumber    int            `json:"page_number,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TaskArtifact links a Task to an Artifact with the similarity score at the
// time of linking (spec §3).
type TaskArtifact struct {
	TaskID         string    `json:"task_id"`
	ArtifactID     string    `json:"artifact_id"`
	RelevanceScore float64   `json:"relevance_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project scopes tasks, PRDs, personas, and artifacts (spec §3).
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PRDIDs      []string  `json:"prd_ids,omitempty"`
	// Dimension is the ANN index vector width for this project (commonly 768).
	Dimension int       `json:"dimension"`
	ScanConfig ScanConfig `json:"scan_config"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanConfig is a project's resolved directory-scan configuration: the
// extensions ingest honors, the file-size ceiling, whether ignore files are
// respected, and this project's own embedding dimension. It is resolved
// once per project and persisted, independent of the process-wide defaults
// a deployment configures globally (spec §3 supplement).
type ScanConfig struct {
	AllowedExtensions  []string `json:"allowed_extensions"`
	MaxFileSizeBytes   int64    `json:"max_file_size_bytes"`
	RespectIgnoreFiles bool     `json:"respect_ignore_files"`
	VectorDimension    int      `json:"vector_dimension"`
}

// DefaultScanConfig resolves a ScanConfig for a freshly created project,
// carrying its own vector dimension rather than the deployment-wide default.
func DefaultScanConfig(vectorDimension int) ScanConfig {
	return ScanConfig{
		AllowedExtensions:  []string{".md", ".txt", ".go", ".rs", ".py", ".js", ".ts"},
		MaxFileSizeBytes:   5 * 1024 * 1024,
		RespectIgnoreFiles: true,
		VectorDimension:    vectorDimension,
	}
}

// ProjectContext summarizes a project's current state: how many tasks sit
// in each status, how many artifacts have been generated, and when it was
// last scanned. Orchestration prompts are prefixed with this summary for
// project-level framing (spec §3 supplement).
type ProjectContext struct {
	TasksByStatus map[Status]int `json:"tasks_by_status"`
	ArtifactCount int            `json:"artifact_count"`
	LastScanAt    time.Time      `json:"last_scan_at"`
}

// FileFingerprint identifies a file's content for incremental-rescan
// purposes (spec §3). Two fingerprints match iff ContentHash and SizeBytes
// match; ModifiedAt is a fast-reject hint only, never part of identity.
type FileFingerprint struct {
	ContentHash string
	ModifiedAt  time.Time
	SizeBytes   int64
}

// Matches reports whether f and other identify the same content, ignoring
// ModifiedAt.
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.ContentHash == other.ContentHash && f.SizeBytes == other.SizeBytes
}

// Position is a (line, column) location, both 1-indexed.
type Position struct {
	Line int
	Col  int
}

// SourceLocation precisely delimits a ContentChunk within its origin so an
// incremental rescan can reconstruct the byte range without reprocessing
// unchanged neighbors (spec §4.3).
type SourceLocation struct {
	Start     Position
	End       Position
	ByteStart int
	ByteEnd   int
}

// ContentChunk is one piece of chunked source content.
type ContentChunk struct {
	Content    string
	Location   SourceLocation
	ChunkIndex int
}

// ScannedFile is a transient ingest record produced by the directory
// scanner.
type ScannedFile struct {
	Path        string
	RelPath     string
	Fingerprint FileFingerprint
	LineCount   int
}

// CrawledPage is a transient ingest record produced by the web crawler.
type CrawledPage struct {
	URL         string
	Title       string
	Content     string
	Links       []string
	Depth       int
	StatusCode  int
	ContentType string
}

// RoutingDecision is the SemanticRouter node's classification of a task.
type RoutingDecision string

const (
	RouteEnhance   RoutingDecision = "Enhance"
	RouteDecompose RoutingDecision = "Decompose"
)

// EventType classifies a TaskEvent (spec §4.6, §6).
type EventType string

const (
	EventCreated     EventType = "Created"
	EventUpdated     EventType = "Updated"
	EventDeleted     EventType = "Deleted"
	EventOrchestrated EventType = "Orchestrated"
)

// TaskEvent is the wire-stable event envelope emitted on every transition
// (spec §6).
type TaskEvent struct {
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType EventType         `json:"event_type"`
	Task      Task              `json:"task"`
	Actor     string            `json:"actor,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PRD is the parsed product requirements document (spec §6 ParsePRD).
type PRD struct {
	ID          string
	Title       string
	Objectives  []string
	TechStack   []string
	Constraints []string
}

// GenerationReport accumulates the results of one GenerateArtifacts run
// (spec §4.4).
type GenerationReport struct {
	UnitsProcessed   int
	ArtifactsCreated int
	BytesProcessed   int64
	Errors           []string
	DurationMS       int64
}
