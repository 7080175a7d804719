// Package vector is the optional semantic index for event patterns.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Document is one embedded entry of the index.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

type Result struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the capability the pattern layer needs from a vector store.
type Index interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Upsert adds docs, replacing entries with the same id.
	Upsert(ctx context.Context, docs []Document) error
	// Query returns up to n nearest documents, most similar first.
	Query(ctx context.Context, embedding []float32, n int) ([]Result, error)
	Delete(ctx context.Context, ids ...string) error
	Count() int
}

var errNoEmbedder = errors.New("vector index has no embedder")

// ChromemIndex stores documents in one chromem-go collection, in memory or
// persisted under a directory.
type ChromemIndex struct {
	mu    sync.Mutex
	db    *chromem.DB
	col   *chromem.Collection
	embed Embedder
	log   *zap.Logger
}

func NewChromemIndex(cfg config.VectorConfig, embed Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	logger = logging.OrNop(logger)

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent vector DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	idx := &ChromemIndex{db: db, embed: embed, log: logger}
	col, err := db.GetOrCreateCollection(cfg.Collection, nil, idx.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection %s: %w", cfg.Collection, err)
	}
	idx.col = col

	logger.Info("vector index ready",
		zap.String("collection", cfg.Collection),
		zap.Bool("persistent", cfg.Path != ""),
		zap.Int("documents", col.Count()))
	return idx, nil
}

func (i *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return i.Embed(ctx, text)
	}
}

func (i *ChromemIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	if i.embed == nil {
		return nil, errNoEmbedder
	}
	return i.embed.Embed(ctx, text)
}

func (i *ChromemIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for j, d := range docs {
		chromemDocs[j] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}

	concurrency := 1
	if len(docs) > 10 {
		concurrency = 4
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.col.AddDocuments(ctx, chromemDocs, concurrency); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

func (i *ChromemIndex) Query(ctx context.Context, embedding []float32, n int) ([]Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	// chromem rejects n larger than the collection
	if count := i.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	res, err := i.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	out := make([]Result, len(res))
	for j, r := range res {
		out[j] = Result{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Similarity: r.Similarity}
	}
	return out, nil
}

func (i *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (i *ChromemIndex) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.col.Count()
}
