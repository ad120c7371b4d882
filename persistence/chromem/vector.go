package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/vector"
)

var ErrEmbeddingRequired = errors.New("chromem: records must carry their embedding")

const Dirname = "chromem"

const (
	keyDocument  = "document"
	keyChunkType = "chunk_type"
	keyPage      = "page_number"
	keyMetadata  = "metadata"
)

func NewOpener() vector.Opener {
	return &opener{}
}

type opener struct{}

func (*opener) Name() string { return "chromem" }

func (*opener) OpenPersistent(ctx context.Context, cfg vector.Config) (vector.Backend, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(cfg.Path, Dirname), cfg.Compress)
	if err != nil {
		return nil, err
	}

	return newBackend(db, cfg.Collection)
}

func (*opener) Purge(cfg vector.Config) error {
	return os.RemoveAll(filepath.Join(cfg.Path, Dirname))
}

func (*opener) OpenEphemeral(ctx context.Context, cfg vector.Config) (vector.Backend, error) {
	return newBackend(chromem.NewDB(), cfg.Collection)
}

func newBackend(db *chromem.DB, name string) (*chromemBackend, error) {
	c, err := db.GetOrCreateCollection(name, nil, embeddingRequired)
	if err != nil {
		return nil, err
	}

	return &chromemBackend{db, name, c}, nil
}

// Vectors are computed by the embedding provider; the collection never
// embeds on its own.
func embeddingRequired(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingRequired
}

type chromemBackend struct {
	db         *chromem.DB
	name       string
	collection *chromem.Collection
}

func (b *chromemBackend) Upsert(ctx context.Context, records []vector.Record) (int, error) {
	for i, r := range records {
		doc, err := toDocument(r)
		if err != nil {
			return i, err
		}

		if err := b.collection.AddDocument(ctx, doc); err != nil {
			return i, err
		}
	}

	return len(records), nil
}

func (b *chromemBackend) Query(ctx context.Context, v []float32, k int) ([]vector.SearchHit, error) {
	count := b.collection.Count()
	if k > count {
		k = count
	}

	if k == 0 {
		return []vector.SearchHit{}, nil
	}

	results, err := b.collection.QueryEmbedding(ctx, v, k, nil, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]vector.SearchHit, len(results))
	for i, result := range results {
		hits[i] = vector.SearchHit{
			Record: fromResult(result),
			Score:  float64(result.Similarity),
		}
	}

	return hits, nil
}

func (b *chromemBackend) Count(ctx context.Context) (int, error) {
	return b.collection.Count(), nil
}

func (b *chromemBackend) DeleteAll(ctx context.Context) error {
	if err := b.db.DeleteCollection(b.name); err != nil {
		return err
	}

	c, err := b.db.GetOrCreateCollection(b.name, nil, embeddingRequired)
	if err != nil {
		return err
	}

	b.collection = c
	return nil
}

// Close is a no-op, a persistent DB writes every document on add.
func (b *chromemBackend) Close() error {
	return nil
}

func toDocument(r vector.Record) (chromem.Document, error) {
	if len(r.Vector) == 0 {
		return chromem.Document{}, ErrEmbeddingRequired
	}

	metadata := map[string]string{
		keyDocument:  r.DocumentName,
		keyChunkType: string(r.Chunk.ChunkType),
		keyPage:      strconv.Itoa(r.Chunk.PageNumber),
	}

	if len(r.Chunk.Metadata) > 0 {
		bs, err := json.Marshal(r.Chunk.Metadata)
		if err != nil {
			return chromem.Document{}, err
		}

		metadata[keyMetadata] = string(bs)
	}

	return chromem.Document{
		ID:        r.ID,
		Metadata:  metadata,
		Embedding: r.Vector,
		Content:   r.Chunk.Content,
	}, nil
}

func fromResult(result chromem.Result) vector.Record {
	page, err := strconv.Atoi(result.Metadata[keyPage])
	if err != nil {
		page = 1
	}

	var metadata map[string]any
	if raw, ok := result.Metadata[keyMetadata]; ok {
		json.Unmarshal([]byte(raw), &metadata)
	}

	return vector.Record{
		ID:           result.ID,
		DocumentName: result.Metadata[keyDocument],
		Chunk: document.Chunk{
			Content:    result.Content,
			ChunkType:  document.ChunkType(result.Metadata[keyChunkType]),
			PageNumber: page,
			Metadata:   metadata,
		},
		Vector: result.Embedding,
	}
}
