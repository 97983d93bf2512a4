package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Divas-Gupta30/datachat/internal/processing"
	"github.com/Divas-Gupta30/datachat/internal/storage"
)

// DocumentTopK is the number of chunks retrieved per document question.
const DocumentTopK = 2

// ErrDocumentsDisabled is returned by DocumentChat when no vector store is configured.
var ErrDocumentsDisabled = errors.New("document chat is not configured")

// VectorSearcher is implemented by storage.VectorStore.
type VectorSearcher interface {
	QuerySimilar(ctx context.Context, collection string, queryEmb []float32, topK int) ([]storage.Document, error)
}

// EmbedderFor returns the embedder for a model name; empty means the default.
type EmbedderFor func(model string) processing.Embedder

type SourceDocument struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

type DocumentAnswer struct {
	Answer          string           `json:"answer"`
	SourceDocuments []SourceDocument `json:"source_documents"`
}

const documentSystemPrompt = `You are Lumin, an assistant that answers questions about the user's documents.
Use only the context provided. If the answer is not in the context, say you don't know.`

// DocumentChat answers question from the chunks of collection closest to it.
func (s *Service) DocumentChat(ctx context.Context, question, embeddingModel, collection string) (*DocumentAnswer, error) {
	if s.vectors == nil || s.embedder == nil {
		return nil, ErrDocumentsDisabled
	}
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question is required")
	}

	emb, err := s.embedder(embeddingModel).QueryEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	docs, err := s.vectors.QuerySimilar(ctx, collection, emb, DocumentTopK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", collection, err)
	}

	sources := make([]SourceDocument, len(docs))
	contexts := make([]string, len(docs))
	for i, d := range docs {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{"source": d.Filename}
		}
		sources[i] = SourceDocument{PageContent: d.Content, Metadata: meta}
		contexts[i] = d.Content
	}

	client, err := s.llms.Resolve(ctx, s.docsModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLMInit, err)
	}
	answer, err := client.Complete(ctx, documentSystemPrompt,
		fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nAnswer:", strings.Join(contexts, "\n\n"), question))
	if err != nil {
		return nil, fmt.Errorf("answering from documents: %w", err)
	}
	return &DocumentAnswer{Answer: strings.TrimSpace(answer), SourceDocuments: sources}, nil
}
