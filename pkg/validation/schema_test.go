package validation

import (
	"testing"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpActionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string"},
			"method": map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "DELETE"}},
		},
		"required": []any{"url"},
	}
}

func TestConfigValidator_ValidConfig(t *testing.T) {
	validator := NewConfigValidator()
	validator.Register(models.NodeKindAction, httpActionSchema())

	node := &models.Node{
		ID:     "n1",
		Kind:   models.NodeKindAction,
		Config: map[string]any{"url": "https://example.com", "method": "POST"},
	}

	assert.Empty(t, validator.ValidateConfig(node))
}

func TestConfigValidator_MissingRequiredField(t *testing.T) {
	validator := NewConfigValidator()
	validator.Register(models.NodeKindAction, httpActionSchema())

	node := &models.Node{
		ID:     "n1",
		Kind:   models.NodeKindAction,
		Config: map[string]any{"method": "GET"},
	}

	issues := validator.ValidateConfig(node)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeInvalidNodeConfig, issues[0].Code)
	assert.Equal(t, "n1", issues[0].NodeID)
}

func TestConfigValidator_UnregisteredKindPasses(t *testing.T) {
	validator := NewConfigValidator()

	node := &models.Node{ID: "n1", Kind: models.NodeKindDelay, Config: map[string]any{"whatever": true}}
	assert.Empty(t, validator.ValidateConfig(node))
}

func TestConfigValidator_ValidateGraphConfigs(t *testing.T) {
	validator := NewConfigValidator()
	validator.Register(models.NodeKindAction, httpActionSchema())

	workflow := &models.Workflow{
		Name: "mixed",
		Nodes: []*models.Node{
			{ID: "ok", Kind: models.NodeKindAction, Config: map[string]any{"url": "https://a"}},
			{ID: "bad", Kind: models.NodeKindAction, Config: map[string]any{}},
			{ID: "skip", Kind: models.NodeKindTrigger},
		},
	}

	issues := validator.ValidateGraphConfigs(workflow)
	require.Len(t, issues, 1)
	assert.Equal(t, "bad", issues[0].NodeID)
}
