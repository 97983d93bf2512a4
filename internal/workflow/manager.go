// Package workflow wires the SQL question-answering steps into a state graph
// and owns the one step that is not delegated to an LLM: running the query.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/graph"
)

// Node names of the SQL workflow.
const (
	NodeParseQuestion          = "parse_question"
	NodeGenerateSQL            = "generate_sql"
	NodeValidateAndFixSQL      = "validate_and_fix_sql"
	NodeExecuteSQL             = "execute_sql"
	NodeFormatResults          = "format_results"
	NodeChooseVisualization    = "choose_visualization"
	NodeFormatVisualization    = "format_data_for_visualization"
	NodeConversationalResponse = "conversational_response"
)

// Querier runs SQL against the data database.
type Querier interface {
	// ExecuteQuery returns one map per row, or an empty slice for statements
	// that return no rows.
	ExecuteQuery(ctx context.Context, sql string) ([]map[string]any, error)
}

// Manager builds and runs the SQL workflow for one LLM/database pair.
type Manager struct {
	steps    Steps
	db       Querier
	engine   graph.Engine
	log      *slog.Logger
	observer graph.NodeObserver
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for query failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithEngine overrides the default StateGraphEngine.
func WithEngine(e graph.Engine) Option {
	return func(m *Manager) { m.engine = e }
}

// WithNodeObserver is passed through to the compiled graph.
func WithNodeObserver(fn graph.NodeObserver) Option {
	return func(m *Manager) { m.observer = fn }
}

// NewManager returns a Manager. A nil steps value makes every LLM step a no-op.
func NewManager(steps Steps, db Querier, opts ...Option) *Manager {
	m := &Manager{
		steps:  steps,
		db:     db,
		engine: graph.StateGraphEngine{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.steps == nil {
		m.steps = StepFuncs{}
	}
	return m
}

// CreateWorkflow returns the graph definition:
//
//	parse_question -> (generate_sql | conversational_response)
//	generate_sql -> validate_and_fix_sql -> execute_sql -> {format_results, choose_visualization}
//	choose_visualization -> format_data_for_visualization
func (m *Manager) CreateWorkflow() *graph.Builder {
	b := graph.NewBuilder()
	b.AddNode(NodeParseQuestion, m.steps.ParseQuestion)
	b.AddNode(NodeGenerateSQL, m.steps.GenerateSQL)
	b.AddNode(NodeValidateAndFixSQL, m.steps.ValidateAndFixSQL)
	b.AddNode(NodeExecuteSQL, m.RunSQLQuery)
	b.AddNode(NodeFormatResults, m.steps.FormatResults)
	b.AddNode(NodeChooseVisualization, m.steps.ChooseVisualization)
	b.AddNode(NodeFormatVisualization, m.steps.FormatVisualizationData)
	b.AddNode(NodeConversationalResponse, m.steps.ConversationalResponse)

	b.SetEntryPoint(NodeParseQuestion)
	b.AddConditionalEdges(NodeParseQuestion, ShouldContinue, map[string]string{
		NodeGenerateSQL:            NodeGenerateSQL,
		NodeConversationalResponse: NodeConversationalResponse,
	})
	b.AddEdge(NodeGenerateSQL, NodeValidateAndFixSQL)
	b.AddEdge(NodeValidateAndFixSQL, NodeExecuteSQL)
	b.AddEdge(NodeExecuteSQL, NodeFormatResults)
	b.AddEdge(NodeExecuteSQL, NodeChooseVisualization)
	b.AddEdge(NodeChooseVisualization, NodeFormatVisualization)
	b.AddEdge(NodeFormatVisualization, graph.End)
	b.AddEdge(NodeFormatResults, graph.End)
	b.AddEdge(NodeConversationalResponse, graph.End)
	return b
}

// Compile compiles CreateWorkflow with the configured engine.
func (m *Manager) Compile() (graph.Runnable, error) {
	var opts []graph.CompileOption
	if m.observer != nil {
		opts = append(opts, graph.WithNodeObserver(m.observer))
	}
	return m.engine.Compile(m.CreateWorkflow(), opts...)
}

// InitialState is the state a run starts from.
func InitialState(question string, schema any) graph.State {
	return graph.State{KeyQuestion: question, KeySchema: schema}
}

// RunSQLAgent runs the workflow to completion and returns every update.
func (m *Manager) RunSQLAgent(ctx context.Context, question string, schema any) ([]graph.Update, error) {
	app, err := m.Compile()
	if err != nil {
		return nil, err
	}
	var events []graph.Update
	for u, err := range app.Stream(ctx, InitialState(question, schema)) {
		if err != nil {
			return events, err
		}
		events = append(events, u)
	}
	return events, nil
}

// RunSQLQuery executes state["sql_query"]. It never returns an error: failures
// are reported in the "error" key alongside an empty query_result so that the
// formatting steps still receive a well-typed result.
func (m *Manager) RunSQLQuery(ctx context.Context, s graph.State) (graph.State, error) {
	query, _ := s.String(KeySQLQuery)
	if IsNotRelevant(query) {
		return graph.State{KeyQueryResult: []any{}}, nil
	}
	if m.db == nil {
		m.log.Error("no database configured for SQL execution")
		return graph.State{KeyQueryResult: []any{}, KeyError: "no database configured"}, nil
	}

	cleaned := CleanQuery(query)
	rows, err := m.db.ExecuteQuery(ctx, cleaned)
	if err != nil {
		m.log.Error("error executing SQL query", "error", err, "sql", cleaned)
		return graph.State{KeyQueryResult: []any{}, KeyError: err.Error()}, nil
	}
	result := make([]any, len(rows))
	for i, row := range rows {
		result[i] = SerializeRow(row)
	}
	return graph.State{KeyQueryResult: result}, nil
}

// IsNotRelevant reports whether query is empty or the NOT_RELEVANT sentinel.
func IsNotRelevant(query string) bool {
	q := strings.TrimSpace(query)
	return q == "" || strings.EqualFold(q, NotRelevant)
}

// CleanQuery strips backticks and newlines. It is normalization only, not a
// safety measure.
func CleanQuery(query string) string {
	r := strings.NewReplacer("`", " ", "\r\n", " ", "\n", " ")
	return strings.TrimSpace(r.Replace(query))
}

// ShouldContinue routes parse_question: questions the parser marked as not
// relevant, or that produced no parse at all, go to conversational_response.
// A missing is_relevant flag counts as relevant.
func ShouldContinue(_ context.Context, s graph.State) (string, error) {
	parsed := asMap(s[KeyParsedQuestion])
	if len(parsed) == 0 {
		return NodeConversationalResponse, nil
	}
	if relevant, ok := parsed["is_relevant"].(bool); ok && !relevant {
		return NodeConversationalResponse, nil
	}
	return NodeGenerateSQL, nil
}

// asMap accepts the map produced by the parse step or any struct that
// marshals to a JSON object.
func asMap(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return val
	case graph.State:
		return val
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
