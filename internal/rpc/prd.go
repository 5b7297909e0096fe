package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/types"
)

// prdCache holds parsed PRDs (and their full source text, needed for
// GenerateTasksFromPRD's extraction prompt and for IngestPRD) in memory.
// ParsePRD is explicitly a "pure parse, no persistence" operation (spec §6);
// this cache is RPC-process bookkeeping so a later GenerateTasksFromPRD call
// naming the same prd_id doesn't have to re-read the file, not a second
// durable store for PRDs.
type prdCache struct {
	mu    sync.Mutex
	byID  map[string]cachedPRD
}

type cachedPRD struct {
	prd      types.PRD
	fullText string
}

func newPRDCache() *prdCache {
	return &prdCache{byID: map[string]cachedPRD{}}
}

func (c *prdCache) put(prd types.PRD, fullText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[prd.ID] = cachedPRD{prd: prd, fullText: fullText}
}

func (c *prdCache) get(id string) (cachedPRD, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byID[id]
	return v, ok
}

// ParsePRD reads and parses a markdown PRD file into its structured
// sections, without persisting anything (spec §6). Recognised sections are
// headings of any level (other than the H1 taken as the title) whose text
// contains, case-insensitively, "objective", "tech" (Tech Stack / Technology
// Stack) or "constraint"; bullet lists directly under a recognised heading
// populate the matching field. The first H1 becomes the title.
func (s *service) ParsePRD(ctx context.Context, prdFilePath string) (types.PRD, error) {
	data, err := os.ReadFile(prdFilePath)
	if err != nil {
		return types.PRD{}, types.Wrap(types.CodeNotFound, "reading PRD file", err)
	}

	prd := types.PRD{ID: prdID(prdFilePath, data)}
	doc := goldmark.New().Parser().Parse(text.NewReader(data))

	section := ""
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Heading:
			heading := strings.ToLower(nodeText(n, data))
			if n.Level == 1 && prd.Title == "" {
				prd.Title = nodeText(n, data)
				section = ""
				continue
			}
			switch {
			case strings.Contains(heading, "objective"):
				section = "objectives"
			case strings.Contains(heading, "tech"):
				section = "tech_stack"
			case strings.Contains(heading, "constraint"):
				section = "constraints"
			default:
				section = ""
			}
		case *ast.List:
			items := listItemText(n, data)
			switch section {
			case "objectives":
				prd.Objectives = append(prd.Objectives, items...)
			case "tech_stack":
				prd.TechStack = append(prd.TechStack, items...)
			case "constraints":
				prd.Constraints = append(prd.Constraints, items...)
			}
		}
	}
	if prd.Title == "" {
		prd.Title = filepath.Base(prdFilePath)
	}

	s.prdCache.put(prd, string(data))
	return prd, nil
}

func prdID(path string, data []byte) string {
	h := sha256.Sum256(append([]byte(path), data...))
	return "prd-" + hex.EncodeToString(h[:8])
}

// nodeText concatenates every *ast.Text descendant of n, in document order.
func nodeText(n ast.Node, source []byte) string {
	var buf strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// listItemText returns one string per direct ListItem child of list.
func listItemText(list ast.Node, source []byte) []string {
	var items []string
	for c := list.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() != ast.KindListItem {
			continue
		}
		if text := nodeText(c, source); text != "" {
			items = append(items, text)
		}
	}
	return items
}

// GenerateTasksFromPRD extracts a task list from a previously parsed PRD and
// persists each (spec §6). Falls back to one task per objective (or, absent
// any objectives, a single review task) when no StructuredExtraction
// adapter is available or its output is unusable, so a provider outage
// never blocks task creation from a PRD.
func (s *service) GenerateTasksFromPRD(ctx context.Context, in GenerateTasksFromPRDInput) ([]types.Task, error) {
	cached, ok := s.prdCache.get(in.PRDID)
	if !ok {
		return nil, types.NewError(types.CodeInvalidArgument, "unknown prd_id, call ParsePRD first: "+in.PRDID)
	}

	drafts := s.extractTasksFromPRD(ctx, cached)

	tasks := make([]types.Task, 0, len(drafts))
	for _, d := range drafts {
		d.Status = types.StatusTodo
		d.SourcePRDID = cached.prd.ID
		saved, err := s.store.SaveTask(ctx, d)
		if err != nil {
			return tasks, err
		}
		s.emit(types.EventCreated, saved)
		tasks = append(tasks, saved)
	}
	return tasks, nil
}

func (s *service) extractTasksFromPRD(ctx context.Context, cached cachedPRD) []types.Task {
	extractor, err := s.providers.ExtractionFor(config.RoleDecomposer)
	if err != nil {
		return fallbackTasksFromPRD(cached.prd)
	}

	prompt := fmt.Sprintf("Extract a concrete task list from this PRD titled %q. Objectives: %s\n\nFull text:\n%s",
		cached.prd.Title, strings.Join(cached.prd.Objectives, "; "), cached.fullText)
	schema := provider.Schema{Name: "tasks_from_prd", Fields: []string{"items"}}
	result, err := extractor.Extract(ctx, prompt, schema)
	if err != nil {
		return fallbackTasksFromPRD(cached.prd)
	}

	raw, ok := result["items"].([]any)
	if !ok || len(raw) == 0 {
		return fallbackTasksFromPRD(cached.prd)
	}
	tasks := make([]types.Task, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		if title == "" {
			continue
		}
		desc, _ := m["description"].(string)
		tasks = append(tasks, types.Task{Title: title, Description: desc})
	}
	if len(tasks) == 0 {
		return fallbackTasksFromPRD(cached.prd)
	}
	return tasks
}

func fallbackTasksFromPRD(prd types.PRD) []types.Task {
	if len(prd.Objectives) == 0 {
		return []types.Task{{
			Title:       fmt.Sprintf("Review PRD: %s", prd.Title),
			Description: "No objectives were parsed from this PRD; review it manually and break it into tasks.",
		}}
	}
	tasks := make([]types.Task, 0, len(prd.Objectives))
	for _, obj := range prd.Objectives {
		tasks = append(tasks, types.Task{
			Title:       fmt.Sprintf("Address objective: %s", obj),
			Description: fmt.Sprintf("From PRD %q.", prd.Title),
		})
	}
	return tasks
}
