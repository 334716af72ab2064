package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/support-router/server/internal/agent/graph/nodes"
	"github.com/support-router/server/internal/agent/graph/observers"
	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// Runner executes the support workflow for one request.
type Runner interface {
	// Run drives initial through the graph and returns the final state. Step
	// failures other than model errors come back as errx step errors.
	Run(ctx context.Context, initial model.ConversationState) (model.ConversationState, error)
}

// Config holds everything needed to compose the support graph.
type Config struct {
	Store             nodes.MemoryStore
	Completer         model.Completer
	DefaultCategories []string
	BusinessName      string
	// MaxRunSteps caps node executions per run; 0 picks a bound derived from MaxAttempts.
	MaxRunSteps int
}

// GraphBuilder handles the construction of the support graph
type GraphBuilder struct {
	steps       map[nodes.NodeID]nodes.Step
	transitions []Transition
	graph       *compose.Graph[*model.ConversationState, *model.ConversationState]
	maxRunSteps int
}

type graphRunner struct {
	runnable compose.Runnable[*model.ConversationState, *model.ConversationState]
}

func (r *graphRunner) Run(ctx context.Context, initial model.ConversationState) (model.ConversationState, error) {
	in := initial.Clone()
	if in.Attempts < 0 {
		in.Attempts = 0
	}

	out, err := r.runnable.Invoke(ctx, &in, compose.WithCallbacks(observers.NewAllCallbacks()...))
	if err != nil {
		logx.Error().Err(err).Str("user_id", in.UserID).Msg("support graph run failed")
		return model.ConversationState{}, errx.WrapStep("graph", err)
	}
	if out == nil {
		return model.ConversationState{}, errx.WrapStep("graph", fmt.Errorf("graph returned no state"))
	}
	return *out, nil
}

// BuildSupportGraph builds the step set and compiles the support graph.
func BuildSupportGraph(ctx context.Context, cfg Config) (Runner, error) {
	steps, err := nodes.NewSteps(nodes.StepsConfig{
		Store:             cfg.Store,
		Completer:         cfg.Completer,
		DefaultCategories: cfg.DefaultCategories,
		BusinessName:      cfg.BusinessName,
	})
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, steps.Registry(), Transitions, cfg.MaxRunSteps)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Support graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph compiles the transition table over the given steps.
func BuildGraph(
	ctx context.Context,
	steps map[nodes.NodeID]nodes.Step,
	transitions []Transition,
	maxRunSteps int,
) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	if err := validateTransitions(transitions, steps); err != nil {
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}
	if maxRunSteps <= 0 {
		// classify, load, sentiment, handler, (generate, validate) per attempt, escalate, save
		maxRunSteps = 2 * (4 + 2*(MaxAttempts+1) + 2)
	}

	builder := &GraphBuilder{
		steps:       steps,
		transitions: transitions,
		maxRunSteps: maxRunSteps,
		graph: compose.NewGraph[*model.ConversationState, *model.ConversationState](
			compose.WithGenLocalState(func(ctx context.Context) *model.RunTrace {
				return &model.RunTrace{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes registers one lambda per step, in a stable order.
func (b *GraphBuilder) addNodes() error {
	ids := make([]nodes.NodeID, 0, len(b.steps))
	for id := range b.steps {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		opts := []compose.GraphAddNodeOpt{
			compose.WithNodeName(string(id)),
			compose.WithStatePreHandler(newTracePreHandler(id)),
		}
		if id == nodes.NodeSaveMemory {
			opts = append(opts, compose.WithStatePostHandler(newTraceReportPostHandler()))
		}
		if err := b.graph.AddLambdaNode(string(id), newStepLambda(id, b.steps[id]), opts...); err != nil {
			logx.Error().Err(err).Str("node", string(id)).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", id, err)
		}
	}
	return nil
}

// addEdges creates the fixed connections from the transition table.
func (b *GraphBuilder) addEdges() error {
	if err := b.graph.AddEdge(compose.START, string(EntryNode)); err != nil {
		return fmt.Errorf("error adding entry edge: %w", err)
	}
	for _, t := range b.transitions {
		if t.Route != nil {
			continue
		}
		if err := b.graph.AddEdge(string(t.From), string(t.To)); err != nil {
			logx.Error().Err(err).Str("from", string(t.From)).Str("to", string(t.To)).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", t.From, t.To, err)
		}
	}
	return nil
}

// addBranches creates the conditional routing branches from the transition table.
func (b *GraphBuilder) addBranches() error {
	for _, t := range b.transitions {
		if t.Route == nil {
			continue
		}
		endNodes := make(map[string]bool, len(t.Targets))
		for _, target := range t.Targets {
			endNodes[string(target)] = true
		}
		branch := compose.NewGraphBranch(newBranchCondition(t), endNodes)
		if err := b.graph.AddBranch(string(t.From), branch); err != nil {
			logx.Error().Err(err).Str("from", string(t.From)).Msg("Error adding branch")
			return fmt.Errorf("error adding branch from %s: %w", t.From, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("support_graph"),
		compose.WithMaxRunSteps(b.maxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_run_steps", b.maxRunSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

// newStepLambda runs a step and merges its patch into a fresh state.
func newStepLambda(id nodes.NodeID, step nodes.Step) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.ConversationState) (*model.ConversationState, error) {
		if in == nil {
			return nil, errx.WrapStep(string(id), fmt.Errorf("nil conversation state"))
		}
		patch, err := step(ctx, *in)
		if err != nil {
			return nil, errx.WrapStep(string(id), err)
		}
		if err := patch.Check(*in); err != nil {
			return nil, errx.WrapStep(string(id), err)
		}
		out := model.Merge(*in, patch)
		return &out, nil
	})
}

func newBranchCondition(t Transition) func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, in *model.ConversationState) (string, error) {
		if in == nil {
			return "", errx.WrapStep(string(t.From), fmt.Errorf("nil conversation state"))
		}
		next, err := t.Route(*in)
		if err != nil {
			return "", errx.WrapStep(string(t.From), err)
		}
		if !slices.Contains(t.Targets, next) {
			return "", errx.WrapStep(string(t.From), fmt.Errorf("router chose %q outside its targets", next))
		}
		logx.Debug().
			Str("from", string(t.From)).
			Str("to", string(next)).
			Str("user_id", in.UserID).
			Msg("routing")
		return string(next), nil
	}
}

// newTracePreHandler records each visited node in the run trace.
func newTracePreHandler(id nodes.NodeID) func(context.Context, *model.ConversationState, *model.RunTrace) (*model.ConversationState, error) {
	return func(ctx context.Context, in *model.ConversationState, trace *model.RunTrace) (*model.ConversationState, error) {
		if trace.UserID == "" && in != nil {
			trace.UserID = in.UserID
		}
		trace.Path = append(trace.Path, string(id))
		trace.Steps++
		return in, nil
	}
}

// newTraceReportPostHandler logs the full path once memory is saved.
func newTraceReportPostHandler() func(context.Context, *model.ConversationState, *model.RunTrace) (*model.ConversationState, error) {
	return func(ctx context.Context, out *model.ConversationState, trace *model.RunTrace) (*model.ConversationState, error) {
		logx.Info().
			Str("user_id", trace.UserID).
			Int("steps", trace.Steps).
			Str("path", strings.Join(trace.Path, " -> ")).
			Msg("support graph finished")
		return out, nil
	}
}
