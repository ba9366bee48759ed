// Package validation checks workflow graphs for structural soundness before
// they are submitted for execution.
package validation

import (
	"fmt"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// IssueCode classifies a structural problem found in a graph.
type IssueCode string

const (
	CodeEmptyGraph        IssueCode = "EmptyGraph"
	CodeDanglingEdge      IssueCode = "DanglingEdge"
	CodeDisconnectedNode  IssueCode = "DisconnectedNode"
	CodeCycleDetected     IssueCode = "CycleDetected"
	CodeInvalidNodeConfig IssueCode = "InvalidNodeConfig"
)

// Issue is one validation finding. Issues are values surfaced to the user,
// never errors thrown mid-execution.
type Issue struct {
	Code    IssueCode `json:"code"`
	NodeID  string    `json:"node_id,omitempty"`
	EdgeID  string    `json:"edge_id,omitempty"`
	Message string    `json:"message"`
}

// Result is the outcome of validating one graph snapshot.
type Result struct {
	Valid  bool    `json:"is_valid"`
	Errors []Issue `json:"errors"`
}

// Validate checks a workflow graph for structural soundness. It is a pure
// function over the snapshot: no side effects, safe to call repeatedly.
//
// A graph passes when it has at least one node, every edge references
// existing nodes, every node participates in at least one edge, and no
// directed cycle exists.
func Validate(workflow *models.Workflow) Result {
	if workflow == nil || len(workflow.Nodes) == 0 {
		return invalid(Issue{
			Code:    CodeEmptyGraph,
			Message: "workflow must have at least one node",
		})
	}

	var issues []Issue

	nodeIDs := make(map[string]struct{}, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		nodeIDs[node.ID] = struct{}{}
	}

	// Edge endpoint integrity, plus degree bookkeeping for the
	// disconnected-node check. Edges with missing endpoints do not count
	// toward connectivity.
	degree := make(map[string]int, len(workflow.Nodes))
	adjacency := make(map[string][]string, len(workflow.Nodes))

	for _, edge := range workflow.Edges {
		_, sourceOK := nodeIDs[edge.Source]
		_, targetOK := nodeIDs[edge.Target]

		if !sourceOK || !targetOK {
			issues = append(issues, Issue{
				Code:    CodeDanglingEdge,
				EdgeID:  edge.ID,
				Message: fmt.Sprintf("edge %s references a missing node", edge.ID),
			})

			continue
		}

		degree[edge.Source]++
		degree[edge.Target]++
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	for _, node := range workflow.Nodes {
		if degree[node.ID] == 0 {
			issues = append(issues, Issue{
				Code:    CodeDisconnectedNode,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s is not connected to the workflow", node.ID),
			})
		}
	}

	// Edge-count overrun is a necessary-but-not-sufficient signal for a
	// cycle in a simple connected graph; a DFS with an in-progress set
	// confirms a back-edge before reporting.
	if len(workflow.Edges) > len(workflow.Nodes)-1 && hasCycle(workflow.Nodes, adjacency) {
		issues = append(issues, Issue{
			Code:    CodeCycleDetected,
			Message: "workflow contains a cycle",
		})
	}

	return Result{Valid: len(issues) == 0, Errors: issues}
}

func invalid(issues ...Issue) Result {
	return Result{Valid: false, Errors: issues}
}

// hasCycle runs an iterative depth-first walk over every component, tracking
// the in-progress path. A traversal edge to an in-progress node is a
// back-edge, which confirms a directed cycle. The cycle itself is not
// enumerated; callers only need the condition.
func hasCycle(nodes []*models.Node, adjacency map[string][]string) bool {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(nodes))

	var walk func(id string) bool
	walk = func(id string) bool {
		state[id] = inProgress

		for _, next := range adjacency[id] {
			switch state[next] {
			case inProgress:
				return true
			case unvisited:
				if walk(next) {
					return true
				}
			}
		}

		state[id] = done

		return false
	}

	for _, node := range nodes {
		if state[node.ID] == unvisited && walk(node.ID) {
			return true
		}
	}

	return false
}
