package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Divas-Gupta30/datachat/internal/graph"
	"github.com/Divas-Gupta30/datachat/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	rows    []map[string]any
	err     error
	queries []string
}

func (f *fakeQuerier) ExecuteQuery(_ context.Context, sql string) ([]map[string]any, error) {
	f.queries = append(f.queries, sql)
	return f.rows, f.err
}

func TestRunSQLQuery_NotRelevantBypassesDatabase(t *testing.T) {
	for _, q := range []string{"NOT_RELEVANT", "not_relevant", "  Not_Relevant \n", "", "   "} {
		db := &fakeQuerier{}
		m := workflow.NewManager(nil, db)

		out, err := m.RunSQLQuery(context.Background(), graph.State{workflow.KeySQLQuery: q})
		require.NoError(t, err)
		assert.Equal(t, graph.State{workflow.KeyQueryResult: []any{}}, out, "query %q", q)
		assert.Empty(t, db.queries, "query %q must not reach the database", q)
	}

	db := &fakeQuerier{}
	out, err := workflow.NewManager(nil, db).RunSQLQuery(context.Background(), graph.State{})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out[workflow.KeyQueryResult])
	assert.Empty(t, db.queries)
}

func TestRunSQLQuery_CleansAndSerializes(t *testing.T) {
	db := &fakeQuerier{rows: []map[string]any{{"count": int64(42), "label": []byte("all")}}}
	m := workflow.NewManager(nil, db)

	out, err := m.RunSQLQuery(context.Background(), graph.State{
		workflow.KeySQLQuery: "SELECT `count`\nFROM orders\n",
	})
	require.NoError(t, err)
	require.Len(t, db.queries, 1)
	assert.Equal(t, "SELECT  count  FROM orders", db.queries[0])
	assert.Equal(t, []any{map[string]any{"count": int64(42), "label": "all"}}, out[workflow.KeyQueryResult])
	assert.NotContains(t, out, workflow.KeyError)
}

func TestRunSQLQuery_FailureDegradesToEmptyResult(t *testing.T) {
	db := &fakeQuerier{err: errors.New(`relation "nope" does not exist`)}
	m := workflow.NewManager(nil, db)

	out, err := m.RunSQLQuery(context.Background(), graph.State{workflow.KeySQLQuery: "SELECT * FROM nope"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out[workflow.KeyQueryResult])
	assert.Equal(t, `relation "nope" does not exist`, out[workflow.KeyError])
}

func TestShouldContinue(t *testing.T) {
	type parsed struct {
		IsRelevant bool `json:"is_relevant"`
	}
	tests := []struct {
		name   string
		parsed any
		want   string
	}{
		{"absent", nil, workflow.NodeConversationalResponse},
		{"empty map", map[string]any{}, workflow.NodeConversationalResponse},
		{"explicitly irrelevant", map[string]any{"is_relevant": false}, workflow.NodeConversationalResponse},
		{"relevant", map[string]any{"is_relevant": true}, workflow.NodeGenerateSQL},
		{"flag missing fails open", map[string]any{"relevant_tables": []any{"orders"}}, workflow.NodeGenerateSQL},
		{"struct irrelevant", parsed{IsRelevant: false}, workflow.NodeConversationalResponse},
		{"struct relevant", parsed{IsRelevant: true}, workflow.NodeGenerateSQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := graph.State{}
			if tt.parsed != nil {
				s[workflow.KeyParsedQuestion] = tt.parsed
			}
			got, err := workflow.ShouldContinue(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func nodeNames(events []graph.Update) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Node
	}
	return out
}

func TestRunSQLAgent_RowCountScenario(t *testing.T) {
	db := &fakeQuerier{rows: []map[string]any{{"count": 42}}}
	steps := workflow.StepFuncs{
		Parse: func(context.Context, graph.State) (graph.State, error) {
			return graph.State{workflow.KeyParsedQuestion: map[string]any{"is_relevant": true}}, nil
		},
		Generate: func(context.Context, graph.State) (graph.State, error) {
			return graph.State{workflow.KeySQLQuery: "SELECT COUNT(*) FROM orders"}, nil
		},
		Format: func(_ context.Context, s graph.State) (graph.State, error) {
			return graph.State{workflow.KeyResults: s[workflow.KeyQueryResult]}, nil
		},
	}
	m := workflow.NewManager(steps, db)
	schema := []map[string]any{{"table_name": "orders", "schema": []map[string]any{
		{"name": "id", "type": "int", "nullable": false},
		{"name": "total", "type": "float", "nullable": true},
	}}}

	events, err := m.RunSQLAgent(context.Background(), "How many rows are in orders?", schema)
	require.NoError(t, err)
	assert.Equal(t, []string{
		workflow.NodeParseQuestion,
		workflow.NodeGenerateSQL,
		workflow.NodeValidateAndFixSQL,
		workflow.NodeExecuteSQL,
		workflow.NodeFormatResults,
		workflow.NodeChooseVisualization,
		workflow.NodeFormatVisualization,
	}, nodeNames(events))
	assert.Equal(t, []string{"SELECT COUNT(*) FROM orders"}, db.queries)

	formatted := events[4]
	assert.Equal(t, graph.State{workflow.KeyResults: []any{map[string]any{"count": 42}}}, formatted.Values)
}

func TestRunSQLAgent_IrrelevantQuestionScenario(t *testing.T) {
	db := &fakeQuerier{}
	generated := false
	steps := workflow.StepFuncs{
		Parse: func(context.Context, graph.State) (graph.State, error) {
			return graph.State{workflow.KeyParsedQuestion: map[string]any{"is_relevant": false}}, nil
		},
		Generate: func(context.Context, graph.State) (graph.State, error) {
			generated = true
			return graph.State{workflow.KeySQLQuery: "SELECT 1"}, nil
		},
		Conversational: func(context.Context, graph.State) (graph.State, error) {
			return graph.State{workflow.KeyAnswer: "I can only answer questions about your data."}, nil
		},
	}
	m := workflow.NewManager(steps, db)

	events, err := m.RunSQLAgent(context.Background(), "What's the weather today?", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{workflow.NodeParseQuestion, workflow.NodeConversationalResponse}, nodeNames(events))
	assert.Contains(t, events[1].Values, workflow.KeyAnswer)
	assert.False(t, generated)
	assert.Empty(t, db.queries)
	for _, e := range events {
		assert.NotContains(t, e.Values, workflow.KeySQLQuery)
	}
}

func TestRunSQLAgent_NilStepsAreNoops(t *testing.T) {
	m := workflow.NewManager(nil, &fakeQuerier{})
	events, err := m.RunSQLAgent(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{workflow.NodeParseQuestion, workflow.NodeConversationalResponse}, nodeNames(events))
}

func TestRunSQLAgent_NullEngine(t *testing.T) {
	m := workflow.NewManager(nil, &fakeQuerier{}, workflow.WithEngine(graph.NullEngine{}))
	events, err := m.RunSQLAgent(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "result", events[0].Node)
	assert.Equal(t, "q", events[0].Values[workflow.KeyQuestion])
}

func TestCleanQuery(t *testing.T) {
	assert.Equal(t, "SELECT  a  FROM t", workflow.CleanQuery("SELECT `a`\r\nFROM t\n"))
	assert.True(t, workflow.IsNotRelevant(" not_relevant "))
	assert.False(t, workflow.IsNotRelevant("SELECT 1"))
}
