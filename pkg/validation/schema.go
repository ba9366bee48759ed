package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ConfigValidator checks node configuration maps against JSON Schemas
// registered per node kind. Schema findings are advisory: they use
// CodeInvalidNodeConfig and do not gate execution unless the caller chooses
// to include them.
type ConfigValidator struct {
	mu      sync.RWMutex
	schemas map[models.NodeKind]map[string]any
}

// NewConfigValidator creates an empty schema registry.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		schemas: make(map[models.NodeKind]map[string]any),
	}
}

// Register installs (or replaces) the schema for a node kind.
func (v *ConfigValidator) Register(kind models.NodeKind, schema map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.schemas[kind] = schema
}

// ValidateConfig checks one node's config against the schema registered for
// its kind. Nodes of kinds without a registered schema pass.
func (v *ConfigValidator) ValidateConfig(node *models.Node) []Issue {
	v.mu.RLock()
	schema, exists := v.schemas[node.Kind]
	v.mu.RUnlock()

	if !exists {
		return nil
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return []Issue{{
			Code:    CodeInvalidNodeConfig,
			NodeID:  node.ID,
			Message: fmt.Sprintf("schema validation failed: %v", err),
		}}
	}

	if result.Valid() {
		return nil
	}

	descriptions := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}

	return []Issue{{
		Code:    CodeInvalidNodeConfig,
		NodeID:  node.ID,
		Message: strings.Join(descriptions, "; "),
	}}
}

// ValidateGraphConfigs checks every node in the graph, concatenating issues
// in node order.
func (v *ConfigValidator) ValidateGraphConfigs(workflow *models.Workflow) []Issue {
	if workflow == nil {
		return nil
	}

	var issues []Issue
	for _, node := range workflow.Nodes {
		issues = append(issues, v.ValidateConfig(node)...)
	}

	return issues
}
