package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/chat"
	"github.com/Divas-Gupta30/datachat/internal/ingestion"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/gorilla/mux"
)

// DefaultCollection holds uploaded documents when the form names none.
const DefaultCollection = "documents"

type InitiateConversationRequest struct {
	Title string `json:"title"`
}

type AskQuestionRequest struct {
	Question       string   `json:"question"`
	ConversationID int64    `json:"conversation_id"`
	TableList      []string `json:"table_list"`
	Model          string   `json:"model"`
}

type DocumentChatRequest struct {
	Question       string `json:"question"`
	EmbeddingModel string `json:"embedding_model"`
	TableName      string `json:"table_name"`
}

func (s *Server) handleInitiateConversation(w http.ResponseWriter, r *http.Request) {
	var req InitiateConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	c, err := s.store.CreateConversation(r.Context(), req.Title, nil)
	if err != nil {
		s.internalError(w, r, "Failed to create conversation", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"conversation_id": c.ID})
}

func (s *Server) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	var req AskQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch {
	case req.ConversationID == 0:
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	case len(req.TableList) == 0:
		http.Error(w, "table_list must not be empty", http.StatusBadRequest)
		return
	case strings.TrimSpace(req.Question) == "":
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	content, _ := json.Marshal(map[string]any{"question": req.Question, "table_list": req.TableList})
	if err := s.store.SaveMessage(r.Context(), req.ConversationID, storage.RoleUser, content); err != nil {
		s.internalError(w, r, "Failed to save message", err)
		return
	}

	stream, err := s.chat.ExecuteWorkflow(r.Context(), chat.Request{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		Tables:         req.TableList,
		Model:          req.Model,
		DB:             s.data,
	})
	if errors.Is(err, chat.ErrConfiguration) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, "Workflow not available", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for line := range stream {
		if _, err := w.Write(line); err != nil {
			s.log.Warn("client went away during stream", "conversation_id", req.ConversationID, "error", err)
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			s.log.Warn("flush failed", "error", err)
			return
		}
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}
	messages, err := s.store.ListMessages(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to list messages", err)
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleDocumentChat(w http.ResponseWriter, r *http.Request) {
	var req DocumentChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	collection := req.TableName
	if collection == "" {
		collection = DefaultCollection
	}

	answer, err := s.chat.DocumentChat(r.Context(), req.Question, req.EmbeddingModel, collection)
	if errors.Is(err, chat.ErrDocumentsDisabled) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to answer from documents", err)
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleUploadSpreadsheet(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		http.Error(w, "Only CSV files are supported", http.StatusBadRequest)
		return
	}

	table, err := ingestion.LoadCSV(r.Context(), file, header.Filename)
	if errors.Is(err, ingestion.ErrEmptyFile) || errors.Is(err, ingestion.ErrInvalidCSV) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to read spreadsheet", err)
		return
	}

	ds, err := s.store.InsertTable(r.Context(), table, nil)
	if err != nil {
		s.internalError(w, r, "Failed to store spreadsheet", err)
		return
	}
	if s.schemas != nil {
		if err := s.schemas.Invalidate(r.Context(), ds.TableName); err != nil {
			s.log.Warn("schema cache invalidation failed", "table", ds.TableName, "error", err)
		}
	}

	s.log.Info("spreadsheet uploaded", "file", header.Filename, "table", ds.TableName, "rows", len(table.Rows))
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":        "File uploaded successfully",
		"table_name":     ds.TableName,
		"rows_processed": len(table.Rows),
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		http.Error(w, "document indexing is not configured", http.StatusServiceUnavailable)
		return
	}
	file, header, err := formFile(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	if !ingestion.Supported(header.Filename) {
		http.Error(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	collection := r.FormValue("collection")
	if collection == "" {
		collection = DefaultCollection
	}
	n, err := s.indexer.IndexReader(r.Context(), collection, file, header.Filename)
	if errors.Is(err, ingestion.ErrNoText) || errors.Is(err, ingestion.ErrUnsupportedType) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to index document", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":    "Document indexed successfully",
		"collection": collection,
		"chunks":     n,
	})
}

// formFile returns the multipart "file" field.
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, errors.New("invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("file is required")
	}
	return file, header, nil
}

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListDataSources(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to list data sources", err)
		return
	}
	if sources == nil {
		sources = []storage.DataSource{}
	}
	respondJSON(w, http.StatusOK, sources)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
