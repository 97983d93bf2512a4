// Package agent implements the LLM-backed steps of the SQL workflow.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/graph"
	"github.com/Divas-Gupta30/datachat/internal/llm"
	"github.com/Divas-Gupta30/datachat/internal/workflow"
)

// Chart types accepted from the visualization step.
const (
	ChartBar           = "bar"
	ChartHorizontalBar = "horizontal_bar"
	ChartLine          = "line"
	ChartPie           = "pie"
	ChartScatter       = "scatter"
	ChartNone          = "none"
)

var charts = map[string]bool{
	ChartBar: true, ChartHorizontalBar: true, ChartLine: true,
	ChartPie: true, ChartScatter: true, ChartNone: true,
}

// SQLAgent answers questions over a database schema with an LLM.
type SQLAgent struct {
	llm llm.Client
	log *slog.Logger
}

var _ workflow.Steps = (*SQLAgent)(nil)

// New returns an SQLAgent backed by client.
func New(client llm.Client, log *slog.Logger) *SQLAgent {
	if log == nil {
		log = slog.Default()
	}
	return &SQLAgent{llm: client, log: log}
}

// ParsedQuestion is the parse step's output.
type ParsedQuestion struct {
	IsRelevant     bool            `json:"is_relevant"`
	RelevantTables []RelevantTable `json:"relevant_tables"`
}

type RelevantTable struct {
	TableName   string   `json:"table_name"`
	Columns     []string `json:"columns"`
	NounColumns []string `json:"noun_columns,omitempty"`
}

type validation struct {
	Valid          bool   `json:"valid"`
	Issues         string `json:"issues"`
	CorrectedQuery string `json:"corrected_query"`
}

type chartChoice struct {
	Visualization string `json:"visualization"`
	Reason        string `json:"reason"`
}

func (a *SQLAgent) ParseQuestion(ctx context.Context, s graph.State) (graph.State, error) {
	question, _ := s.String(workflow.KeyQuestion)
	schema, err := json.Marshal(s[workflow.KeySchema])
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	out, err := a.llm.Complete(ctx, parseSystemPrompt,
		fmt.Sprintf("Database schema:\n%s\n\nUser question:\n%s", schema, question))
	if err != nil {
		return nil, fmt.Errorf("parse question: %w", err)
	}

	var parsed ParsedQuestion
	if err := json.Unmarshal([]byte(extractJSON(out)), &parsed); err != nil {
		// unparseable output routes to the conversational reply
		a.log.Warn("parse_question returned invalid JSON", "error", err, "output", out)
		return graph.State{workflow.KeyParsedQuestion: map[string]any{}}, nil
	}
	if parsed.RelevantTables == nil {
		parsed.RelevantTables = []RelevantTable{}
	}
	return graph.State{workflow.KeyParsedQuestion: toMap(parsed)}, nil
}

func (a *SQLAgent) GenerateSQL(ctx context.Context, s graph.State) (graph.State, error) {
	question, _ := s.String(workflow.KeyQuestion)
	parsed := toMap(s[workflow.KeyParsedQuestion])
	if relevant, ok := parsed["is_relevant"].(bool); ok && !relevant {
		return graph.State{workflow.KeySQLQuery: workflow.NotRelevant}, nil
	}

	tables, err := json.Marshal(parsed["relevant_tables"])
	if err != nil {
		return nil, fmt.Errorf("encoding relevant tables: %w", err)
	}
	schema, err := json.Marshal(s[workflow.KeySchema])
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	out, err := a.llm.Complete(ctx, generateSystemPrompt,
		fmt.Sprintf("Database schema:\n%s\n\nRelevant tables and columns:\n%s\n\nUser question:\n%s", schema, tables, question))
	if err != nil {
		return nil, fmt.Errorf("generate sql: %w", err)
	}
	return graph.State{workflow.KeySQLQuery: extractSQL(out)}, nil
}

func (a *SQLAgent) ValidateAndFixSQL(ctx context.Context, s graph.State) (graph.State, error) {
	query, _ := s.String(workflow.KeySQLQuery)
	if workflow.IsNotRelevant(query) {
		return graph.State{workflow.KeySQLQuery: workflow.NotRelevant, workflow.KeySQLValid: false}, nil
	}
	schema, err := json.Marshal(s[workflow.KeySchema])
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}

	out, err := a.llm.Complete(ctx, validateSystemPrompt,
		fmt.Sprintf("Database schema:\n%s\n\nSQL query:\n%s", schema, query))
	if err != nil {
		return nil, fmt.Errorf("validate sql: %w", err)
	}

	var v validation
	if err := json.Unmarshal([]byte(extractJSON(out)), &v); err != nil {
		a.log.Warn("validate_and_fix_sql returned invalid JSON; keeping query", "error", err)
		return graph.State{workflow.KeySQLQuery: query, workflow.KeySQLValid: true, workflow.KeySQLIssues: ""}, nil
	}

	fixed := strings.TrimSpace(v.CorrectedQuery)
	if fixed == "" || strings.EqualFold(fixed, "none") || v.Valid {
		fixed = query
	}
	return graph.State{
		workflow.KeySQLQuery:  extractSQL(fixed),
		workflow.KeySQLValid:  v.Valid,
		workflow.KeySQLIssues: v.Issues,
	}, nil
}

func (a *SQLAgent) FormatResults(ctx context.Context, s graph.State) (graph.State, error) {
	question, _ := s.String(workflow.KeyQuestion)
	results := rows(s[workflow.KeyQueryResult])

	if query, _ := s.String(workflow.KeySQLQuery); workflow.IsNotRelevant(query) {
		return graph.State{
			workflow.KeyResults: results,
			workflow.KeyAnswer:  "Sorry, I can only answer questions about the selected data.",
		}, nil
	}
	if msg, ok := s.String(workflow.KeyError); ok && msg != "" {
		return graph.State{
			workflow.KeyResults: results,
			workflow.KeyAnswer:  "The query could not be run: " + msg,
		}, nil
	}

	encoded, err := json.Marshal(truncate(results, 50))
	if err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}
	out, err := a.llm.Complete(ctx, formatSystemPrompt,
		fmt.Sprintf("User question:\n%s\n\nQuery results (%d rows):\n%s", question, len(results), encoded))
	if err != nil {
		return nil, fmt.Errorf("format results: %w", err)
	}
	return graph.State{workflow.KeyResults: results, workflow.KeyAnswer: strings.TrimSpace(out)}, nil
}

func (a *SQLAgent) ChooseVisualization(ctx context.Context, s graph.State) (graph.State, error) {
	question, _ := s.String(workflow.KeyQuestion)
	query, _ := s.String(workflow.KeySQLQuery)
	results := rows(s[workflow.KeyQueryResult])
	if workflow.IsNotRelevant(query) || len(results) == 0 {
		return graph.State{
			workflow.KeyVisualization:       ChartNone,
			workflow.KeyVisualizationReason: "No data to visualize.",
		}, nil
	}

	encoded, err := json.Marshal(truncate(results, 10))
	if err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}
	out, err := a.llm.Complete(ctx, visualizationSystemPrompt,
		fmt.Sprintf("User question:\n%s\n\nSQL query:\n%s\n\nSample of %d result rows:\n%s", question, query, len(results), encoded))
	if err != nil {
		return nil, fmt.Errorf("choose visualization: %w", err)
	}

	var c chartChoice
	if err := json.Unmarshal([]byte(extractJSON(out)), &c); err != nil || !charts[strings.ToLower(c.Visualization)] {
		a.log.Warn("choose_visualization returned unusable output", "output", out)
		return graph.State{
			workflow.KeyVisualization:       ChartNone,
			workflow.KeyVisualizationReason: "Could not determine a suitable chart.",
		}, nil
	}
	return graph.State{
		workflow.KeyVisualization:       strings.ToLower(c.Visualization),
		workflow.KeyVisualizationReason: c.Reason,
	}, nil
}

// FormatVisualizationData shapes query_result for the chosen chart. It does not call the LLM.
func (a *SQLAgent) FormatVisualizationData(_ context.Context, s graph.State) (graph.State, error) {
	chart, _ := s.String(workflow.KeyVisualization)
	data := ChartData(chart, rows(s[workflow.KeyQueryResult]))
	return graph.State{workflow.KeyVisualizationData: data}, nil
}

func (a *SQLAgent) ConversationalResponse(ctx context.Context, s graph.State) (graph.State, error) {
	question, _ := s.String(workflow.KeyQuestion)
	out, err := a.llm.Complete(ctx, conversationalSystemPrompt, question)
	if err != nil {
		return nil, fmt.Errorf("conversational response: %w", err)
	}
	return graph.State{workflow.KeyAnswer: strings.TrimSpace(out)}, nil
}

// extractJSON strips markdown fences and surrounding prose from a JSON answer.
func extractJSON(content string) string {
	content = stripFence(content)
	start := strings.IndexAny(content, "{[")
	end := strings.LastIndexAny(content, "}]")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func extractSQL(content string) string {
	content = stripFence(content)
	return strings.TrimSuffix(strings.TrimSpace(content), ";")
}

func stripFence(content string) string {
	content = strings.TrimSpace(content)
	idx := strings.Index(content, "```")
	if idx < 0 {
		return content
	}
	content = content[idx+3:]
	// drop the language tag
	if nl := strings.IndexByte(content, '\n'); nl >= 0 && !strings.ContainsAny(content[:nl], " {") {
		content = content[nl+1:]
	}
	if end := strings.Index(content, "```"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}

func toMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case graph.State:
		return m
	case nil:
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func rows(v any) []any {
	switch r := v.(type) {
	case []any:
		return r
	case []map[string]any:
		out := make([]any, len(r))
		for i := range r {
			out[i] = r[i]
		}
		return out
	}
	return []any{}
}

func truncate(r []any, n int) []any {
	if len(r) > n {
		return r[:n]
	}
	return r
}
