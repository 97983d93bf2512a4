package storage

import (
	"context"
	"fmt"

	"github.com/Divas-Gupta30/datachat/internal/processing"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// VectorStore keeps document chunks and their embeddings in the documents table.
type VectorStore struct {
	db *DB
}

func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

const insertChunk = `INSERT INTO documents (collection, filename, source, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`

// InsertChunks adds chunks with their embeddings to collection in one transaction.
func (v *VectorStore) InsertChunks(ctx context.Context, collection string, chunks []processing.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := v.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) != processing.EmbeddingDim {
			return fmt.Errorf("chunk of %s has embedding dim %d, want %d", c.Metadata.Path, len(c.Embedding), processing.EmbeddingDim)
		}
		batch.Queue(insertChunk, collection, c.Metadata.Title, c.Metadata.Source, c.Content,
			c.Metadata.Map(), pgvector.NewVector(c.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks into %s: %w", collection, err)
	}
	return tx.Commit(ctx)
}

// QuerySimilar returns the topK chunks of collection nearest to queryEmb.
func (v *VectorStore) QuerySimilar(ctx context.Context, collection string, queryEmb []float32, topK int) ([]Document, error) {
	rows, err := v.db.pool.Query(ctx,
		`SELECT id, collection, filename, source, content, metadata, embedding <-> $1 AS distance
		FROM documents WHERE collection = $2 ORDER BY embedding <-> $1 LIMIT $3`,
		pgvector.NewVector(queryEmb), collection, topK)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var doc Document
		err := row.Scan(&doc.ID, &doc.Collection, &doc.Filename, &doc.Source, &doc.Content, &doc.Metadata, &doc.Distance)
		return doc, err
	})
}

// Collections lists the collections that hold at least one chunk.
func (v *VectorStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := v.db.pool.Query(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
