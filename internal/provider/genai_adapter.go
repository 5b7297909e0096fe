package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// genAIClient is the shared construction the three GenAI-backed ports wrap.
type genAIClient struct {
	client *genai.Client
	model  string
}

func newGenAIClient(ctx context.Context, apiKey, model string) (*genAIClient, error) {
	if apiKey == "" {
		return nil, types.NewError(types.CodeProviderUnavailable, "genai API key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "failed to create genai client", err)
	}
	return &genAIClient{client: client, model: model}, nil
}

func (g *genAIClient) generateText(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		logging.Provider.Warn("genai GenerateContent failed after %v: %v", time.Since(start), err)
		return "", types.Wrap(types.CodeProviderUnavailable, "genai generate failed", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", types.NewError(types.CodeProviderUnavailable, "genai returned no content")
	}
	return text, nil
}

// GenAITextEnhancement adapts genAIClient to the TextEnhancement port.
type GenAITextEnhancement struct{ c *genAIClient }

// NewGenAITextEnhancement constructs a TextEnhancement backed by the Gemini
// API for the given model (spec §4.2.1).
func NewGenAITextEnhancement(ctx context.Context, apiKey, model string) (*GenAITextEnhancement, error) {
	c, err := newGenAIClient(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}
	return &GenAITextEnhancement{c: c}, nil
}

func (e *GenAITextEnhancement) Enhance(ctx context.Context, task types.Task, ragContext string) (types.Enhancement, error) {
	prompt := fmt.Sprintf(
		"Task: %s\nDescription: %s\n\nRelated context:\n%s\n\nPropose exactly one enhancement that clarifies scope or acceptance criteria. Respond with plain text only.",
		task.Title, task.Description, ragContext,
	)
	text, err := e.c.generateText(ctx, "You refine software task descriptions for an autonomous planner.", prompt, false)
	if err != nil {
		return types.Enhancement{}, err
	}
	return types.Enhancement{
		Type:    types.EnhancementClarify,
		Content: text,
		Source:  "llm",
	}, nil
}

// GenAIStructuredExtraction adapts genAIClient to the StructuredExtraction
// port, requesting JSON-mode output and parsing it through ParseStructured.
type GenAIStructuredExtraction struct{ c *genAIClient }

func NewGenAIStructuredExtraction(ctx context.Context, apiKey, model string) (*GenAIStructuredExtraction, error) {
	c, err := newGenAIClient(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}
	return &GenAIStructuredExtraction{c: c}, nil
}

func (e *GenAIStructuredExtraction) Extract(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	sys := fmt.Sprintf("Respond with a single JSON object matching schema %q with fields: %s.", schema.Name, strings.Join(schema.Fields, ", "))
	text, err := e.c.generateText(ctx, sys, prompt, true)
	if err != nil {
		return nil, err
	}
	return ParseStructured(text)
}

// GenAIVision adapts genAIClient to the Vision port using inline image
// bytes (spec §4.2.4).
type GenAIVision struct{ c *genAIClient }

func NewGenAIVision(ctx context.Context, apiKey, model string) (*GenAIVision, error) {
	c, err := newGenAIClient(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}
	return &GenAIVision{c: c}, nil
}

func (v *GenAIVision) Describe(ctx context.Context, base64Data, mimeType, context string) (VisionDescription, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return VisionDescription{}, types.Wrap(types.CodeInvalidArgument, "invalid base64 image data", err)
	}
	start := time.Now()
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromText("Describe this image for a task-relevance search index. Context: " + context),
			genai.NewPartFromBytes(raw, mimeType),
		},
	}}
	resp, err := v.c.client.Models.GenerateContent(ctx, v.c.model, contents, nil)
	if err != nil {
		return VisionDescription{}, types.Wrap(types.CodeProviderUnavailable, "genai vision failed", err)
	}
	return VisionDescription{Description: strings.TrimSpace(resp.Text()), ElapsedMS: time.Since(start).Milliseconds()}, nil
}

func (v *GenAIVision) DescribePage(ctx context.Context, pageImageBase64 string, pageNo int, context string) (VisionDescription, error) {
	return v.Describe(ctx, pageImageBase64, "image/png", fmt.Sprintf("page %d of %s", pageNo, context))
}
