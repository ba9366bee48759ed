// Package models defines the core domain models for workflow execution monitoring.
package models

// NodeKind represents the kind of a workflow node.
type NodeKind string

const (
	NodeKindTrigger     NodeKind = "trigger"     // Entry points (webhook, schedule, manual)
	NodeKindAction      NodeKind = "action"      // Regular action nodes (http, log, transform, etc.)
	NodeKindCondition   NodeKind = "condition"   // Branching on an expression
	NodeKindDelay       NodeKind = "delay"       // Timed wait between nodes
	NodeKindIntegration NodeKind = "integration" // Third-party service calls
)

// Valid reports whether the kind is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindTrigger, NodeKindAction, NodeKindCondition, NodeKindDelay, NodeKindIntegration:
		return true
	}

	return false
}

// Node represents a node instance in a workflow graph.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Kind   NodeKind       `json:"kind"   validate:"required,oneof=trigger action condition delay integration"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Edge connects two nodes by id.
type Edge struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// Workflow is an immutable graph snapshot taken at submission time. The
// builder UI owns the mutable definition; this subsystem only reads it.
type Workflow struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"  validate:"required,min=1"`
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
