// Package chat runs the SQL workflow for a question and streams its updates
// as newline-delimited JSON, and answers questions over indexed documents.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/Divas-Gupta30/datachat/internal/agent"
	"github.com/Divas-Gupta30/datachat/internal/graph"
	"github.com/Divas-Gupta30/datachat/internal/llm"
	"github.com/Divas-Gupta30/datachat/internal/metrics"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/Divas-Gupta30/datachat/internal/workflow"
	"github.com/getsentry/sentry-go"
)

// Database is the data database a question runs against.
type Database interface {
	workflow.Querier
	storage.SchemaFetcher
}

// Opener connects to a database by URL. The returned func releases it.
type Opener func(ctx context.Context, url string) (Database, func(), error)

// LLMResolver is implemented by llm.Factory.
type LLMResolver interface {
	Resolve(ctx context.Context, model string) (llm.Client, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, conversationID int64, role string, content json.RawMessage) error
}

// StepsFactory builds the workflow steps for a resolved LLM.
type StepsFactory func(client llm.Client, log *slog.Logger) workflow.Steps

// Request is one question to answer.
type Request struct {
	Question       string
	ConversationID int64
	Tables         []string
	Model          string
	// DB is used when set, otherwise a connection to DatabaseURL is opened
	// for the duration of the stream.
	DB          Database
	DatabaseURL string
}

// Service answers questions. It holds no per-request state.
type Service struct {
	llms     LLMResolver
	messages MessageStore
	schemas  storage.SchemaFetcher
	open     Opener
	steps    StepsFactory
	engine   graph.Engine
	observer graph.NodeObserver
	log      *slog.Logger

	vectors   VectorSearcher
	embedder  EmbedderFor
	docsModel string
}

// Option configures a Service.
type Option func(*Service)

// WithMessageStore enables saving the assistant message after each stream.
func WithMessageStore(m MessageStore) Option {
	return func(s *Service) { s.messages = m }
}

// WithSchemaFetcher routes schema lookups for requests with an explicit DB
// through f, typically a storage.SchemaCache.
func WithSchemaFetcher(f storage.SchemaFetcher) Option {
	return func(s *Service) { s.schemas = f }
}

// WithOpener replaces the connector used for Request.DatabaseURL.
func WithOpener(o Opener) Option {
	return func(s *Service) { s.open = o }
}

// WithSteps replaces the LLM-backed workflow steps.
func WithSteps(f StepsFactory) Option {
	return func(s *Service) { s.steps = f }
}

// WithEngine selects the graph engine.
func WithEngine(e graph.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithNodeObserver is called after every workflow node.
func WithNodeObserver(fn graph.NodeObserver) Option {
	return func(s *Service) { s.observer = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithDocuments enables DocumentChat. model is the LLM used to answer; empty
// means the resolver's default.
func WithDocuments(vectors VectorSearcher, embedder EmbedderFor, model string) Option {
	return func(s *Service) {
		s.vectors = vectors
		s.embedder = embedder
		s.docsModel = model
	}
}

// NewService returns a Service that resolves models through llms.
func NewService(llms LLMResolver, opts ...Option) *Service {
	s := &Service{
		llms:   llms,
		open:   openPostgres,
		engine: graph.StateGraphEngine{},
		log:    slog.Default(),
		steps: func(c llm.Client, log *slog.Logger) workflow.Steps {
			return agent.New(c, log)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func openPostgres(ctx context.Context, url string) (Database, func(), error) {
	db, err := storage.Open(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// ExecuteWorkflow returns the answer stream for req. Each element is one JSON
// line terminated by "\n": {"data": <update>} per workflow node, or an
// {"error": ..., "detail": ...} line. Setup failures produce a stream with a
// single error line. ErrConfiguration, for a request without any database,
// is the only failure returned instead of streamed.
// The sequence can be iterated once.
func (s *Service) ExecuteWorkflow(ctx context.Context, req Request) (iter.Seq[[]byte], error) {
	if req.DB == nil && req.DatabaseURL == "" {
		return nil, ErrConfiguration
	}
	var used atomic.Bool
	return func(yield func([]byte) bool) {
		if used.Swap(true) {
			return
		}
		s.run(ctx, req, yield)
	}, nil
}

func (s *Service) run(ctx context.Context, req Request, yield func([]byte) bool) {
	client, err := s.llms.Resolve(ctx, req.Model)
	if err != nil {
		s.fail(ctx, "llm_init", fmt.Errorf("%w: %w", ErrLLMInit, err))
		yield(errorLine(msgLLMInit, err))
		return
	}

	db := req.DB
	fetcher := storage.SchemaFetcher(db)
	if db != nil && s.schemas != nil {
		fetcher = s.schemas
	}
	if db == nil {
		opened, release, err := s.open(ctx, req.DatabaseURL)
		if err != nil {
			s.fail(ctx, "schema_fetch", fmt.Errorf("%w: %w", ErrSchemaFetch, err))
			yield(errorLine(msgSchemaFetch, err))
			return
		}
		defer release()
		db, fetcher = opened, opened
	}

	schema, err := fetchSchemas(ctx, fetcher, req.Tables)
	if err != nil {
		s.fail(ctx, "schema_fetch", fmt.Errorf("%w: %w", ErrSchemaFetch, err))
		yield(errorLine(msgSchemaFetch, err))
		return
	}

	opts := []workflow.Option{workflow.WithLogger(s.log), workflow.WithEngine(s.engine)}
	if s.observer != nil {
		opts = append(opts, workflow.WithNodeObserver(s.observer))
	}
	app, err := workflow.NewManager(s.steps(client, s.log), db, opts...).Compile()
	if err != nil {
		s.fail(ctx, "workflow_init", fmt.Errorf("%w: %w", ErrWorkflowInit, err))
		yield(errorLine(msgWorkflowInit, err))
		return
	}

	var events []json.RawMessage
	for update, err := range app.Stream(ctx, workflow.InitialState(req.Question, schema)) {
		if err != nil {
			s.fail(ctx, "step", err)
			yield(mustLine(map[string]any{"error": SanitizeError(err)}))
			return
		}
		event := encodeEvent(update)
		events = append(events, event)
		if !yield(dataLine(event)) {
			return
		}
	}

	if s.messages == nil {
		s.log.Debug("no message store configured; skipping assistant message")
		return
	}
	if err := s.persist(ctx, req.ConversationID, events); err != nil {
		s.fail(ctx, "persistence", err)
		yield(errorLine(msgPersistence, err))
	}
}

// fetchSchemas converts panics from the fetcher into errors.
func fetchSchemas(ctx context.Context, f storage.SchemaFetcher, tables []string) (schemas []storage.TableSchema, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.FetchSchemas(ctx, tables)
}

// persist saves every streamed event as {"answer": [...]} on the conversation.
func (s *Service) persist(ctx context.Context, conversationID int64, events []json.RawMessage) error {
	if events == nil {
		events = []json.RawMessage{}
	}
	content, err := json.Marshal(map[string]any{"answer": events})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := s.messages.SaveMessage(ctx, conversationID, storage.RoleAssistant, content); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, kind string, err error) {
	metrics.StreamErrorsTotal.WithLabelValues(kind).Inc()
	s.log.Error("answer stream failed", "kind", kind, "error", err)
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// encodeEvent serializes one update. Values that cannot be encoded degrade to
// their string form.
func encodeEvent(u graph.Update) json.RawMessage {
	b, err := json.Marshal(u)
	if err == nil {
		return b
	}
	metrics.StreamErrorsTotal.WithLabelValues("serialization").Inc()
	b, err = json.Marshal(map[string]any{u.Node: workflow.SerializeRow(u.Values)})
	if err == nil {
		return b
	}
	b, _ = json.Marshal(fmt.Sprint(u))
	return b
}

func dataLine(event json.RawMessage) []byte {
	return mustLine(map[string]json.RawMessage{"data": event})
}

func errorLine(msg string, err error) []byte {
	return mustLine(map[string]string{"error": msg, "detail": SanitizeError(err)})
}

func mustLine(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": ErrSerialization.Error()})
	}
	return append(b, '\n')
}
