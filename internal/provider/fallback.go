package provider

import (
	"fmt"

	"github.com/rigger/core/internal/types"
)

// FallbackEnhancement produces a deterministic Enhancement when no
// TextEnhancement provider is reachable, so a provider outage never stalls
// a run (spec §4.2, §8 scenario 6 "Provider unavailable").
func FallbackEnhancement(task types.Task) types.Enhancement {
	return types.Enhancement{
		Type:    types.EnhancementClarify,
		Content: fmt.Sprintf("Clarify the specific requirements and acceptance criteria for: %s", task.Title),
		Source:  "fallback",
	}
}

// FallbackComprehensionTest produces a deterministic short-answer question
// when no provider is reachable.
func FallbackComprehensionTest(task types.Task) types.ComprehensionTest {
	return types.ComprehensionTest{
		Type:   types.TestShortAnswer,
		Prompt: fmt.Sprintf("In one or two sentences, what does completing %q require?", task.Title),
		Source: "fallback",
	}
}

// FallbackSubtasks splits task into the deterministic four-item template
// when no StructuredExtraction provider is reachable, or its output is
// unusable, for decomposition (spec §4.6, "falls back to a deterministic
// four-item template").
func FallbackSubtasks(task types.Task) []types.Task {
	steps := []string{"Plan", "Implement", "Test", "Verify"}
	out := make([]types.Task, 0, len(steps))
	complexity := task.Complexity - 2
	if complexity < 1 {
		complexity = 1
	}
	for _, step := range steps {
		out = append(out, types.Task{
			Title:       fmt.Sprintf("%s: %s", step, task.Title),
			Description: fmt.Sprintf("%s phase of: %s", step, task.Description),
			Status:      types.StatusTodo,
			Complexity:  complexity,
		})
	}
	return out
}
