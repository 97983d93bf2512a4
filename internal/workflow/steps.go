package workflow

import (
	"context"

	"github.com/Divas-Gupta30/datachat/internal/graph"
)

// State keys shared by the SQL workflow steps.
const (
	KeyQuestion            = "question"
	KeySchema              = "schema"
	KeyParsedQuestion      = "parsed_question"
	KeySQLQuery            = "sql_query"
	KeySQLValid            = "sql_valid"
	KeySQLIssues           = "sql_issues"
	KeyQueryResult         = "query_result"
	KeyError               = "error"
	KeyResults             = "results"
	KeyVisualization       = "recommended_visualization"
	KeyVisualizationReason = "visualization_reason"
	KeyVisualizationData   = "formatted_data_for_visualization"
	KeyAnswer              = "answer"
)

// NotRelevant is the sql_query sentinel meaning "do not execute".
const NotRelevant = "NOT_RELEVANT"

// Steps are the externally supplied, usually LLM-backed, pipeline steps.
type Steps interface {
	ParseQuestion(ctx context.Context, s graph.State) (graph.State, error)
	GenerateSQL(ctx context.Context, s graph.State) (graph.State, error)
	ValidateAndFixSQL(ctx context.Context, s graph.State) (graph.State, error)
	FormatResults(ctx context.Context, s graph.State) (graph.State, error)
	ChooseVisualization(ctx context.Context, s graph.State) (graph.State, error)
	FormatVisualizationData(ctx context.Context, s graph.State) (graph.State, error)
	ConversationalResponse(ctx context.Context, s graph.State) (graph.State, error)
}

// StepFuncs adapts plain functions to Steps. Nil fields behave as no-op steps.
type StepFuncs struct {
	Parse               graph.NodeFunc
	Generate            graph.NodeFunc
	Validate            graph.NodeFunc
	Format              graph.NodeFunc
	Visualize           graph.NodeFunc
	FormatVisualization graph.NodeFunc
	Conversational      graph.NodeFunc
}

func call(fn graph.NodeFunc, ctx context.Context, s graph.State) (graph.State, error) {
	if fn == nil {
		return graph.Noop(ctx, s)
	}
	return fn(ctx, s)
}

func (f StepFuncs) ParseQuestion(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Parse, ctx, s)
}

func (f StepFuncs) GenerateSQL(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Generate, ctx, s)
}

func (f StepFuncs) ValidateAndFixSQL(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Validate, ctx, s)
}

func (f StepFuncs) FormatResults(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Format, ctx, s)
}

func (f StepFuncs) ChooseVisualization(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Visualize, ctx, s)
}

func (f StepFuncs) FormatVisualizationData(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.FormatVisualization, ctx, s)
}

func (f StepFuncs) ConversationalResponse(ctx context.Context, s graph.State) (graph.State, error) {
	return call(f.Conversational, ctx, s)
}
