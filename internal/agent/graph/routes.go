package graph

import (
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/support-router/server/internal/agent/graph/nodes"
	"github.com/support-router/server/internal/agent/model"
)

// MaxAttempts is the validation retry bound before escalation.
const MaxAttempts = 3

// NodeEnd terminates the graph.
const NodeEnd nodes.NodeID = compose.END

// EntryNode is the first node of every run.
const EntryNode = nodes.NodeClassify

// Router picks the next node from the current state.
type Router func(s model.ConversationState) (nodes.NodeID, error)

// Transition is one row of the transition table: a fixed edge when Route is
// nil, otherwise a conditional edge restricted to Targets.
type Transition struct {
	From    nodes.NodeID
	To      nodes.NodeID
	Route   Router
	Targets []nodes.NodeID
}

// Transitions is the full support workflow.
var Transitions = []Transition{
	{From: nodes.NodeClassify, To: nodes.NodeLoadMemory},
	{From: nodes.NodeLoadMemory, To: nodes.NodeSentiment},
	{
		From:  nodes.NodeSentiment,
		Route: RouteAfterClassify,
		Targets: []nodes.NodeID{
			nodes.NodeCollaboration,
			nodes.NodeTechnicalHandler,
			nodes.NodeBillingHandler,
			nodes.NodeReturnsHandler,
			nodes.NodeGeneralHandler,
		},
	},
	{From: nodes.NodeBillingHandler, To: nodes.NodeGenerateResponse},
	{From: nodes.NodeTechnicalHandler, To: nodes.NodeGenerateResponse},
	{From: nodes.NodeReturnsHandler, To: nodes.NodeGenerateResponse},
	{From: nodes.NodeGeneralHandler, To: nodes.NodeGenerateResponse},
	{From: nodes.NodeCollaboration, To: nodes.NodeGenerateResponse},
	{From: nodes.NodeGenerateResponse, To: nodes.NodeValidate},
	{
		From:  nodes.NodeValidate,
		Route: routeAfterValidate,
		Targets: []nodes.NodeID{
			nodes.NodeSaveMemory,
			nodes.NodeEscalate,
			nodes.NodeGenerateResponse,
		},
	},
	{From: nodes.NodeEscalate, To: nodes.NodeSaveMemory},
	{From: nodes.NodeSaveMemory, To: NodeEnd},
}

// RouteAfterClassify dispatches to collaboration for multi-category requests
// and to the matching specialist otherwise.
func RouteAfterClassify(s model.ConversationState) (nodes.NodeID, error) {
	switch {
	case len(s.Categories) == 0:
		return "", fmt.Errorf("no categories to route on")
	case len(s.Categories) > 1:
		return nodes.NodeCollaboration, nil
	}
	switch s.Categories[0] {
	case nodes.CategoryTechnical:
		return nodes.NodeTechnicalHandler, nil
	case nodes.CategoryBilling:
		return nodes.NodeBillingHandler, nil
	case nodes.CategoryReturns:
		return nodes.NodeReturnsHandler, nil
	default:
		return nodes.NodeGeneralHandler, nil
	}
}

// RouteAfterValidate finishes satisfactory runs, escalates once the attempt
// bound is reached and otherwise regenerates the response.
func RouteAfterValidate(satisfactory bool, attempts int) nodes.NodeID {
	switch {
	case satisfactory:
		return nodes.NodeSaveMemory
	case attempts >= MaxAttempts:
		return nodes.NodeEscalate
	default:
		return nodes.NodeGenerateResponse
	}
}

func routeAfterValidate(s model.ConversationState) (nodes.NodeID, error) {
	return RouteAfterValidate(s.IsSatisfactory(), s.Attempts), nil
}

// validateTransitions checks the table against the registered steps: every
// step has exactly one outgoing row and every target exists.
func validateTransitions(table []Transition, steps map[nodes.NodeID]nodes.Step) error {
	known := func(id nodes.NodeID) bool {
		if id == NodeEnd {
			return true
		}
		_, ok := steps[id]
		return ok
	}
	if !known(EntryNode) {
		return fmt.Errorf("entry node %q has no step", EntryNode)
	}

	outgoing := map[nodes.NodeID]int{}
	for _, t := range table {
		if !known(t.From) || t.From == NodeEnd {
			return fmt.Errorf("transition from unknown node %q", t.From)
		}
		outgoing[t.From]++
		if t.Route == nil {
			if !known(t.To) {
				return fmt.Errorf("edge %q -> unknown node %q", t.From, t.To)
			}
			continue
		}
		if len(t.Targets) == 0 {
			return fmt.Errorf("branch from %q has no targets", t.From)
		}
		for _, target := range t.Targets {
			if !known(target) {
				return fmt.Errorf("branch %q -> unknown node %q", t.From, target)
			}
		}
	}
	for id := range steps {
		if outgoing[id] != 1 {
			return fmt.Errorf("node %q has %d outgoing transitions, want 1", id, outgoing[id])
		}
	}
	return nil
}
