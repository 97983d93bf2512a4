package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Divas-Gupta30/datachat/internal/chat"
	"github.com/Divas-Gupta30/datachat/internal/ingestion"
	"github.com/Divas-Gupta30/datachat/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	pingErr  error
	saved    []storage.Message
	messages map[int64][]storage.Message
	tables   []*ingestion.Table
	sources  []storage.DataSource
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateConversation(_ context.Context, title string, _ *int64) (storage.Conversation, error) {
	return storage.Conversation{ID: 11, Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, id int64, role string, content json.RawMessage) error {
	f.saved = append(f.saved, storage.Message{ConversationID: id, Role: role, Content: content})
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, id int64) ([]storage.Message, error) {
	msgs, ok := f.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return msgs, nil
}

func (f *fakeStore) ListDataSources(context.Context) ([]storage.DataSource, error) {
	return f.sources, nil
}

func (f *fakeStore) InsertTable(_ context.Context, t *ingestion.Table, _ *int64) (storage.DataSource, error) {
	f.tables = append(f.tables, t)
	return storage.DataSource{ID: 1, Name: t.Source, TableName: t.Name, Rows: int64(len(t.Rows))}, nil
}

type fakeChat struct {
	lines []string
	req   chat.Request
	err   error
	docs  *chat.DocumentAnswer
}

func (f *fakeChat) ExecuteWorkflow(_ context.Context, req chat.Request) (iter.Seq[[]byte], error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return func(yield func([]byte) bool) {
		for _, l := range f.lines {
			if !yield([]byte(l + "\n")) {
				return
			}
		}
	}, nil
}

func (f *fakeChat) DocumentChat(_ context.Context, question, _, collection string) (*chat.DocumentAnswer, error) {
	if f.docs == nil {
		return nil, chat.ErrDocumentsDisabled
	}
	return f.docs, nil
}

type fakeIndexer struct{ collection, filename, body string }

func (f *fakeIndexer) IndexReader(_ context.Context, collection string, r io.Reader, filename string) (int, error) {
	b, _ := io.ReadAll(r)
	f.collection, f.filename, f.body = collection, filename, string(b)
	return 3, nil
}

type fakeInvalidator struct{ tables []string }

func (f *fakeInvalidator) Invalidate(_ context.Context, table string) error {
	f.tables = append(f.tables, table)
	return nil
}

func newTestHandler(store *fakeStore, c *fakeChat, opts ...func(*Config)) http.Handler {
	cfg := Config{Store: store, Chat: c, Log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(&cfg)
	}
	return Handler(cfg)
}

func do(h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInitiateConversation(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeChat{})
	rec := do(h, http.MethodPost, "/api/chat/v1/initiate-conversations", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"conversation_id": 11}`, rec.Body.String())
}

func TestAskQuestion_Streams(t *testing.T) {
	store := &fakeStore{}
	c := &fakeChat{lines: []string{
		`{"data":{"parse_question":{"parsed_question":{"is_relevant":true}}}}`,
		`{"data":{"format_results":{"results":[{"count":42}]}}}`,
	}}
	h := newTestHandler(store, c)

	body := `{"question":"How many rows are in orders?","conversation_id":5,"table_list":["orders"],"model":"groq:gemma2-9b-it"}`
	rec := do(h, http.MethodPost, "/api/chat/v1/ask-question", strings.NewReader(body), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, strings.Join(c.lines, "\n")+"\n", rec.Body.String())

	assert.Equal(t, int64(5), c.req.ConversationID)
	assert.Equal(t, []string{"orders"}, c.req.Tables)
	assert.Equal(t, "groq:gemma2-9b-it", c.req.Model)

	require.Len(t, store.saved, 1)
	assert.Equal(t, storage.RoleUser, store.saved[0].Role)
	assert.JSONEq(t, `{"question":"How many rows are in orders?","table_list":["orders"]}`, string(store.saved[0].Content))
}

func TestAskQuestion_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing conversation", `{"question":"q","table_list":["t"]}`},
		{"empty table list", `{"question":"q","conversation_id":1,"table_list":[]}`},
		{"empty question", `{"question":" ","conversation_id":1,"table_list":["t"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			rec := do(newTestHandler(store, &fakeChat{}), http.MethodPost, "/api/chat/v1/ask-question", strings.NewReader(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, store.saved)
		})
	}
}

func TestAskQuestion_WorkflowUnavailable(t *testing.T) {
	body := `{"question":"q","conversation_id":1,"table_list":["t"]}`

	h := newTestHandler(&fakeStore{}, &fakeChat{err: chat.ErrConfiguration})
	rec := do(h, http.MethodPost, "/api/chat/v1/ask-question", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = newTestHandler(&fakeStore{}, &fakeChat{err: errors.New("boom")})
	rec = do(h, http.MethodPost, "/api/chat/v1/ask-question", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListMessages(t *testing.T) {
	store := &fakeStore{messages: map[int64][]storage.Message{
		3: {{ID: 1, ConversationID: 3, Role: storage.RoleUser, Content: json.RawMessage(`{"question":"q"}`)}},
	}}
	h := newTestHandler(store, &fakeChat{})

	rec := do(h, http.MethodGet, "/api/chat/v1/conversations/3/messages", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []storage.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"question":"q"}`, string(got[0].Content))

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/chat/v1/conversations/4/messages", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/chat/v1/conversations/abc/messages", nil, "").Code)
}

func TestDocumentChat(t *testing.T) {
	c := &fakeChat{docs: &chat.DocumentAnswer{
		Answer:          "Net 30.",
		SourceDocuments: []chat.SourceDocument{{PageContent: "Payment terms: net 30.", Metadata: map[string]any{"source": "terms.pdf"}}},
	}}
	rec := do(newTestHandler(&fakeStore{}, c), http.MethodPost, "/api/chat/v1/document-chat",
		strings.NewReader(`{"question":"terms?","table_name":"finance"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"Net 30.","source_documents":[{"page_content":"Payment terms: net 30.","metadata":{"source":"terms.pdf"}}]}`, rec.Body.String())

	rec = do(newTestHandler(&fakeStore{}, &fakeChat{}), http.MethodPost, "/api/chat/v1/document-chat",
		strings.NewReader(`{"question":"terms?"}`), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadSpreadsheet(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeInvalidator{}
	h := newTestHandler(store, &fakeChat{}, func(c *Config) { c.Schemas = cache })

	body, ct := multipartBody(t, "Sales Q1.csv", "region,total\neu,3.5\nus,7\n", nil)
	rec := do(h, http.MethodPost, "/api/data/v1/upload-spreadsheet", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		TableName     string `json:"table_name"`
		RowsProcessed int    `json:"rows_processed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.RowsProcessed)
	assert.True(t, strings.HasPrefix(resp.TableName, "sales_q1_"))
	require.Len(t, store.tables, 1)
	assert.Equal(t, []string{"region", "total"}, store.tables[0].ColumnNames())
	assert.Equal(t, []string{resp.TableName}, cache.tables)
}

func TestUploadSpreadsheet_Rejects(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeChat{})

	body, ct := multipartBody(t, "notes.txt", "a,b\n1,2\n", nil)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/data/v1/upload-spreadsheet", body, ct).Code)

	body, ct = multipartBody(t, "empty.csv", "", nil)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/data/v1/upload-spreadsheet", body, ct).Code)

	assert.Equal(t, http.StatusBadRequest,
		do(h, http.MethodPost, "/api/data/v1/upload-spreadsheet", strings.NewReader("x"), "text/plain").Code)
}

func TestUploadDocument(t *testing.T) {
	ix := &fakeIndexer{}
	h := newTestHandler(&fakeStore{}, &fakeChat{}, func(c *Config) { c.Indexer = ix })

	body, ct := multipartBody(t, "handbook.txt", "Holidays are 25 days.", map[string]string{"collection": "hr"})
	rec := do(h, http.MethodPost, "/api/data/v1/upload-document", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Document indexed successfully","collection":"hr","chunks":3}`, rec.Body.String())
	assert.Equal(t, "handbook.txt", ix.filename)
	assert.Equal(t, "Holidays are 25 days.", ix.body)

	body, ct = multipartBody(t, "image.gif", "GIF89a", nil)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/data/v1/upload-document", body, ct).Code)

	body, ct = multipartBody(t, "handbook.txt", "x", nil)
	rec = do(newTestHandler(&fakeStore{}, &fakeChat{}), http.MethodPost, "/api/data/v1/upload-document", body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListDataSources(t *testing.T) {
	rec := do(newTestHandler(&fakeStore{}, &fakeChat{}), http.MethodGet, "/api/data/v1/data-sources", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := do(newTestHandler(&fakeStore{}, &fakeChat{}), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(newTestHandler(&fakeStore{pingErr: errors.New("down")}, &fakeChat{}), http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeChat{})
	do(h, http.MethodGet, "/health", nil, "")

	rec := do(h, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `datachat_http_requests_total{endpoint="/health",method="GET",status="200"}`)
}

func TestCORS(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeChat{}, func(c *Config) { c.CORSOrigins = []string{"https://app.example.com"} })
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
