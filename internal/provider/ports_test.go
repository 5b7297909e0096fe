package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/types"
)

type stubTextEnhancement struct{}

func (stubTextEnhancement) Enhance(ctx context.Context, task types.Task, ragContext string) (types.Enhancement, error) {
	return types.Enhancement{Type: types.EnhancementClarify, Content: "stub", Source: "llm"}, nil
}

func TestSetResolvesRoleSpecificAdapter(t *testing.T) {
	cfg := config.Default()
	cfg.RoleModels[config.RoleEnhancer] = config.ProviderModel{Provider: "genai", Model: "enhancer-model"}
	set := NewSet(cfg)
	set.RegisterTextEnhancement("enhancer-model", stubTextEnhancement{})

	adapter, err := set.TextEnhancementFor(config.RoleEnhancer)
	require.NoError(t, err)
	enh, err := adapter.Enhance(context.Background(), types.Task{}, "")
	require.NoError(t, err)
	require.Equal(t, "stub", enh.Content)
}

func TestSetFeatureUnavailableWhenNoAdapterRegistered(t *testing.T) {
	cfg := config.Default()
	set := NewSet(cfg)

	_, err := set.TextEnhancementFor(config.RoleEnhancer)
	require.Error(t, err)
	require.Equal(t, types.CodeFeatureUnavailable, types.CodeOf(err))
}

func TestSetFallsBackToDefaultModelWhenRoleUnspecialised(t *testing.T) {
	cfg := config.Default()
	set := NewSet(cfg)
	set.RegisterTextEnhancement(cfg.DefaultModel.Model, stubTextEnhancement{})

	adapter, err := set.TextEnhancementFor(config.RoleDecomposer)
	require.NoError(t, err)
	require.NotNil(t, adapter)
}
