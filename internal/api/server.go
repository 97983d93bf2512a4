// Package api exposes the chat and data endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Divas-Gupta30/datachat/internal/chat"
	"github.com/Divas-Gupta30/datachat/internal/ingestion"
	"github.com/Divas-Gupta30/datachat/internal/metrics"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxUploadBytes bounds multipart uploads held in memory.
const maxUploadBytes = 32 << 20

// Store is the application database used by the handlers.
type Store interface {
	Ping(ctx context.Context) error
	CreateConversation(ctx context.Context, title string, userID *int64) (storage.Conversation, error)
	SaveMessage(ctx context.Context, conversationID int64, role string, content json.RawMessage) error
	ListMessages(ctx context.Context, conversationID int64) ([]storage.Message, error)
	ListDataSources(ctx context.Context) ([]storage.DataSource, error)
	InsertTable(ctx context.Context, t *ingestion.Table, userID *int64) (storage.DataSource, error)
}

// Answerer is implemented by chat.Service.
type Answerer interface {
	ExecuteWorkflow(ctx context.Context, req chat.Request) (iter.Seq[[]byte], error)
	DocumentChat(ctx context.Context, question, embeddingModel, collection string) (*chat.DocumentAnswer, error)
}

// DocumentIndexer is implemented by ingestion.Indexer.
type DocumentIndexer interface {
	IndexReader(ctx context.Context, collection string, r io.Reader, filename string) (int, error)
}

// SchemaInvalidator drops cached schemas after a table is created.
type SchemaInvalidator interface {
	Invalidate(ctx context.Context, table string) error
}

// Config carries the handler dependencies. Indexer and Schemas are optional.
type Config struct {
	Store   Store
	Data    chat.Database
	Chat    Answerer
	Indexer DocumentIndexer
	Schemas SchemaInvalidator
	Log     *slog.Logger

	CORSOrigins []string
	Sentry      bool
}

type Server struct {
	store   Store
	data    chat.Database
	chat    Answerer
	indexer DocumentIndexer
	schemas SchemaInvalidator
	log     *slog.Logger
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:   cfg.Store,
		data:    cfg.Data,
		chat:    cfg.Chat,
		indexer: cfg.Indexer,
		schemas: cfg.Schemas,
		log:     log,
	}
}

// Handler returns the router wrapped in the CORS, metrics and optional Sentry
// middleware.
func Handler(cfg Config) http.Handler {
	s := NewServer(cfg)
	router := mux.NewRouter()

	router.HandleFunc("/api/chat/v1/initiate-conversations", s.handleInitiateConversation).Methods("POST")
	router.HandleFunc("/api/chat/v1/ask-question", s.handleAskQuestion).Methods("POST")
	router.HandleFunc("/api/chat/v1/conversations/{id}/messages", s.handleListMessages).Methods("GET")
	router.HandleFunc("/api/chat/v1/document-chat", s.handleDocumentChat).Methods("POST")
	router.HandleFunc("/api/data/v1/upload-spreadsheet", s.handleUploadSpreadsheet).Methods("POST")
	router.HandleFunc("/api/data/v1/upload-document", s.handleUploadDocument).Methods("POST")
	router.HandleFunc("/api/data/v1/data-sources", s.handleListDataSources).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	router.Use(instrument)
	if cfg.Sentry {
		router.Use(sentryhttp.New(sentryhttp.Options{Repanic: false}).Handle)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})(router)
}

// statusRecorder captures the response status for metrics. Unwrap lets
// http.ResponseController reach the underlying writer's Flush.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// internalError logs err, reports it to Sentry when enabled and writes msg.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg, "path", r.URL.Path, "error", err)
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	}
	http.Error(w, msg, http.StatusInternalServerError)
}
