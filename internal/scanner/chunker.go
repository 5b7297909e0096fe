package scanner

import (
	"fmt"
	"strings"

	"github.com/rigger/core/internal/types"
)

// Strategy is one of the four chunking strategies named in spec §4.3.
type Strategy interface {
	Chunk(content string) []types.ContentChunk
}

// StrategyKind names a Strategy for config-driven selection.
type StrategyKind string

const (
	KindParagraph StrategyKind = "paragraph"
	KindSentence  StrategyKind = "sentence"
	KindFixedSize StrategyKind = "fixed_size"
	KindWholeFile StrategyKind = "whole_file"
)

// NewStrategy constructs a Strategy from a kind and, for KindFixedSize, a
// chunk size in characters.
func NewStrategy(kind StrategyKind, fixedSize int) (Strategy, error) {
	switch kind {
	case KindParagraph:
		return ParagraphStrategy{}, nil
	case KindSentence:
		return SentenceStrategy{}, nil
	case KindFixedSize:
		return FixedSizeStrategy{Size: fixedSize}, nil
	case KindWholeFile:
		return WholeFileStrategy{}, nil
	default:
		return nil, fmt.Errorf("scanner: unknown chunk strategy %q", kind)
	}
}

// locationOf computes line/column and byte extents for content[start:end]
// within the full source text.
func locationOf(full string, start, end int) types.SourceLocation {
	return types.SourceLocation{
		Start:     positionAt(full, start),
		End:       positionAt(full, end),
		ByteStart: start,
		ByteEnd:   end,
	}
}

func positionAt(full string, byteOffset int) types.Position {
	if byteOffset > len(full) {
		byteOffset = len(full)
	}
	line, col := 1, 1
	for i := 0; i < byteOffset; i++ {
		if full[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return types.Position{Line: line, Col: col}
}

// ParagraphStrategy splits on blank lines.
type ParagraphStrategy struct{}

func (ParagraphStrategy) Chunk(content string) []types.ContentChunk {
	if content == "" {
		return nil
	}
	var chunks []types.ContentChunk
	paras := strings.Split(content, "\n\n")
	offset := 0
	idx := 0
	for _, p := range paras {
		start := strings.Index(content[offset:], p) + offset
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			end := start + len(p)
			chunks = append(chunks, types.ContentChunk{
				Content:    trimmed,
				Location:   locationOf(content, start, end),
				ChunkIndex: idx,
			})
			idx++
		}
		offset = start + len(p) + 2 // skip the blank-line separator
	}
	return chunks
}

// SentenceStrategy splits on '.', '!', or '?' followed by whitespace.
type SentenceStrategy struct{}

func (SentenceStrategy) Chunk(content string) []types.ContentChunk {
	if content == "" {
		return nil
	}
	var chunks []types.ContentChunk
	start := 0
	idx := 0
	for i := 0; i < len(content); i++ {
		c := content[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		// Require the terminator be followed by whitespace or end-of-text.
		if i+1 < len(content) {
			next := content[i+1]
			if next != ' ' && next != '\n' && next != '\t' {
				continue
			}
		}
		sentence := strings.TrimSpace(content[start : i+1])
		if sentence != "" {
			chunks = append(chunks, types.ContentChunk{
				Content:    sentence,
				Location:   locationOf(content, start, i+1),
				ChunkIndex: idx,
			})
			idx++
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(content[start:]); rest != "" {
		chunks = append(chunks, types.ContentChunk{
			Content:    rest,
			Location:   locationOf(content, start, len(content)),
			ChunkIndex: idx,
		})
	}
	return chunks
}

// FixedSizeStrategy splits into n-character windows, trimmed. A zero or
// negative Size yields no chunks (spec §8 boundary behaviour).
type FixedSizeStrategy struct {
	Size int
}

func (f FixedSizeStrategy) Chunk(content string) []types.ContentChunk {
	if f.Size <= 0 || content == "" {
		return nil
	}
	var chunks []types.ContentChunk
	runes := []rune(content)
	idx := 0
	for start := 0; start < len(runes); start += f.Size {
		end := start + f.Size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece == "" {
			continue
		}
		byteStart := len(string(runes[:start]))
		byteEnd := len(string(runes[:end]))
		chunks = append(chunks, types.ContentChunk{
			Content:    piece,
			Location:   locationOf(content, byteStart, byteEnd),
			ChunkIndex: idx,
		})
		idx++
	}
	return chunks
}

// WholeFileStrategy emits the entire content as a single chunk.
type WholeFileStrategy struct{}

func (WholeFileStrategy) Chunk(content string) []types.ContentChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return []types.ContentChunk{{
		Content:    content,
		Location:   locationOf(content, 0, len(content)),
		ChunkIndex: 0,
	}}
}
