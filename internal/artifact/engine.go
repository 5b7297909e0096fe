// Package artifact implements C4: turning scanned files, crawled pages, and
// PRD text into embedded, searchable Artifact rows, and answering retrieval
// queries for the orchestration graph's RAG context (spec §4.4). Built on a
// batch-embed pipeline adapted from ad hoc "vectors" rows to the
// Artifact/SourceID data model.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/scanner"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

// embedBatchSize bounds how many chunks are embedded in one provider call,
// independent of the provider's own internal batching (spec §4.4).
const embedBatchSize = 64

// Engine drives the scan/crawl → chunk → embed → upsert pipeline and serves
// RAG retrieval queries against the resulting artifacts.
type Engine struct {
	store     store.Store
	providers *provider.Set

	mu    sync.Mutex
	stats Stats
}

// NewEngine constructs an Engine over a store and a resolved provider set.
func NewEngine(s store.Store, providers *provider.Set) *Engine {
	return &Engine{store: s, providers: providers}
}

// IngestFiles reads, chunks, and embeds every scanned file under strategy,
// upserting one Artifact per chunk scoped to projectID (spec §4.3/§4.4
// pipeline). A file that fails to reread is recorded as a report error and
// skipped; the rest of the batch proceeds.
func (e *Engine) IngestFiles(ctx context.Context, projectID string, files []types.ScannedFile, strategy scanner.Strategy) (types.GenerationReport, error) {
	var chunks []pendingChunk
	var readErrors []string
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			readErrors = append(readErrors, fmt.Sprintf("%s: %v", f.RelPath, err))
			continue
		}
		for _, c := range strategy.Chunk(string(data)) {
			chunks = append(chunks, pendingChunk{
				sourceID:   fmt.Sprintf("%s#%d", scanner.ArtifactSourceIDPrefix(f.RelPath), c.ChunkIndex),
				sourceType: types.SourceFile,
				content:    c.Content,
			})
		}
	}
	report, err := e.embedAndUpsert(ctx, projectID, chunks)
	report.Errors = append(report.Errors, readErrors...)
	return report, err
}

// IngestPages chunks and embeds crawled web pages (spec §4.3 crawler →
// §4.4 pipeline).
func (e *Engine) IngestPages(ctx context.Context, projectID string, pages []types.CrawledPage, strategy scanner.Strategy) (types.GenerationReport, error) {
	var chunks []pendingChunk
	for _, p := range pages {
		for _, c := range strategy.Chunk(p.Content) {
			chunks = append(chunks, pendingChunk{
				sourceID:   sourceID("web", p.URL, c.ChunkIndex),
				sourceType: types.SourceWebResearch,
				content:    c.Content,
				sourceURL:  p.URL,
			})
		}
	}
	return e.embedAndUpsert(ctx, projectID, chunks)
}

// IngestPRD chunks and embeds a parsed PRD's objectives/constraints text as
// a single logical source (spec §6 GenerateArtifacts from a PRD).
func (e *Engine) IngestPRD(ctx context.Context, projectID string, prd types.PRD, fullText string, strategy scanner.Strategy) (types.GenerationReport, error) {
	var chunks []pendingChunk
	for _, c := range strategy.Chunk(fullText) {
		chunks = append(chunks, pendingChunk{
			sourceID:   sourceID("prd", prd.ID, c.ChunkIndex),
			sourceType: types.SourcePRD,
			content:    c.Content,
		})
	}
	return e.embedAndUpsert(ctx, projectID, chunks)
}

// IngestText chunks and embeds literal user-supplied text as UserInput
// artifacts, keyed by a caller-chosen sourceKey (e.g. a clipboard paste or
// CLI --text argument, spec §6 GenerateArtifacts source = text).
func (e *Engine) IngestText(ctx context.Context, projectID, sourceKey, text string, strategy scanner.Strategy) (types.GenerationReport, error) {
	var chunks []pendingChunk
	for _, c := range strategy.Chunk(text) {
		chunks = append(chunks, pendingChunk{
			sourceID:   sourceID("text", sourceKey, c.ChunkIndex),
			sourceType: types.SourceUserInput,
			content:    c.Content,
		})
	}
	return e.embedAndUpsert(ctx, projectID, chunks)
}

type pendingChunk struct {
	sourceID   string
	sourceType types.SourceType
	content    string
	sourceURL  string
}

func sourceID(prefix, key string, chunkIndex int) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%s:%d", prefix, hex.EncodeToString(h[:8]), chunkIndex)
}

// embedAndUpsert batches chunks through the Embedding port and upserts the
// resulting Artifacts, accumulating a GenerationReport. A provider failure
// fails the whole batch it occurred in but does not abort the run (spec §8
// scenario 6, "provider unavailable never stalls ingestion").
func (e *Engine) embedAndUpsert(ctx context.Context, projectID string, chunks []pendingChunk) (types.GenerationReport, error) {
	runStart := time.Now()
	report := types.GenerationReport{}
	if len(chunks) == 0 {
		return report, nil
	}

	embedder, err := e.providers.EmbeddingAdapter()
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		report.DurationMS = time.Since(runStart).Milliseconds()
		return report, nil
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.content
		}

		vectors, err := embedder.GenerateMany(ctx, texts)
		if err != nil {
			logging.Artifact.Warn("embedding batch [%d:%d] failed: %v", start, end, err)
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if len(vectors) != len(batch) {
			msg := fmt.Sprintf("embedding batch returned %d vectors for %d inputs", len(vectors), len(batch))
			logging.Artifact.Error("%s", msg)
			report.Errors = append(report.Errors, msg)
			continue
		}

		for i, c := range batch {
			a := types.Artifact{
				ProjectID:  projectID,
				SourceID:   c.sourceID,
				SourceType: c.sourceType,
				Content:    c.content,
				Embedding:  vectors[i],
				SourceURL:  c.sourceURL,
				CreatedAt:  time.Now(),
			}
			saved, err := e.store.SaveArtifact(ctx, a)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
				continue
			}
			report.ArtifactsCreated++
			report.BytesProcessed += int64(len(saved.Content))
		}
		report.UnitsProcessed += len(batch)
	}

	report.DurationMS = time.Since(runStart).Milliseconds()
	e.recordRun(report)
	return report, nil
}

func (e *Engine) recordRun(r types.GenerationReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.RunsCompleted++
	e.stats.ArtifactsCreated += r.ArtifactsCreated
	e.stats.BytesProcessed += r.BytesProcessed
	e.stats.ErrorsSeen += len(r.Errors)
}
