package docrag

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/confidence"
	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/llm"
	"github.com/flarexio/docrag/prompt"
	"github.com/flarexio/docrag/vector"
)

// Service defines the retrieval and synthesis core of docrag.
type Service interface {

	// AddDocument encodes and stores the chunks of one document.
	AddDocument(ctx context.Context, documentName string, chunks []document.Chunk) (IngestResult, error)

	// Query answers a question from the stored chunks. The history is a
	// read-only copy owned by the caller.
	Query(ctx context.Context, question string, history []conversation.Turn) (QueryResponse, error)

	// Stats reports the store size and the active embedding strategy.
	Stats(ctx context.Context) (Stats, error)

	// Reset removes every stored chunk.
	Reset(ctx context.Context) error

	// Close shuts the vector store down.
	Close() error
}

type ServiceMiddleware func(Service) Service

type Embedder interface {
	EncodeOne(ctx context.Context, text string) ([]float32, error)
	Strategy() string
	Dimension() int
}

type VectorStore interface {
	Add(ctx context.Context, documentName string, chunks []document.Chunk) (vector.AddResult, error)
	Search(ctx context.Context, v []float32, k int) ([]vector.SearchHit, error)
	Stats(ctx context.Context) (vector.Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

// NewService wires an initialized store. A nil completer answers every
// question with the apology text.
func NewService(cfg Config, embedder Embedder, store VectorStore, completer llm.Completer) Service {
	log := zap.L().With(
		zap.String("service", "docrag"),
	)

	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	return &service{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		completer: completer,
		log:       log,
	}
}

type service struct {
	cfg       Config
	embedder  Embedder
	store     VectorStore
	completer llm.Completer
	log       *zap.Logger
}

func (svc *service) AddDocument(ctx context.Context, documentName string, chunks []document.Chunk) (IngestResult, error) {
	result := IngestResult{
		DocumentName: documentName,
		Submitted:    len(chunks),
		TypeCounts:   make(map[document.ChunkType]int),
	}

	if strings.TrimSpace(documentName) == "" {
		return result, ErrInvalidDocumentName
	}

	if len(chunks) == 0 {
		return result, ErrNoChunks
	}

	added, err := svc.store.Add(ctx, documentName, chunks)
	result.Accepted = added.Accepted
	result.Rejected = added.Rejected
	if added.TypeCounts != nil {
		result.TypeCounts = added.TypeCounts
	}

	return result, err
}

func (svc *service) Query(ctx context.Context, question string, history []conversation.Turn) (QueryResponse, error) {
	log := svc.log.With(
		zap.String("action", "query"),
	)

	question = strings.TrimSpace(question)
	if question == "" {
		return responseWithReason(EmptyQueryAnswer, QueryTypeNotReady, ErrEmptyQuery), nil
	}

	stats, err := svc.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, vector.ErrNotReady) || errors.Is(err, vector.ErrClosed) {
			return responseWithReason(NoDocumentsAnswer, QueryTypeNotReady, ErrNoDocuments), nil
		}

		return responseWithReason(FailedAnswer, QueryTypeFailed, err), err
	}

	if stats.TotalRecords == 0 {
		return responseWithReason(NoDocumentsAnswer, QueryTypeNotReady, ErrNoDocuments), nil
	}

	v, err := svc.embedder.EncodeOne(ctx, question)
	if err != nil {
		return responseWithReason(FailedAnswer, QueryTypeFailed, err), err
	}

	hits, err := svc.store.Search(ctx, v, svc.cfg.TopK)
	if err != nil {
		return responseWithReason(FailedAnswer, QueryTypeFailed, err), err
	}

	if len(hits) == 0 {
		return newResponse(NoContextAnswer, QueryTypeNoContext), nil
	}

	pc := prompt.Build(question, hits, history)

	answer, err := svc.complete(ctx, llm.NewRequest(pc))
	if err != nil {
		log.Error(err.Error())
		return responseWithReason(ApologyAnswer, QueryTypeUnavailable, err), nil
	}

	return QueryResponse{
		Answer:       answer,
		SourcesUsed:  len(hits),
		Confidence:   confidence.Score(hits),
		ContextTypes: pc.ChunkTypes(),
		QueryType:    QueryTypeAnswered,
		Sources:      pc.Sources,
	}, nil
}

func (svc *service) complete(ctx context.Context, req llm.Request) (string, error) {
	if svc.completer == nil {
		return "", llm.ErrMissingAPIKey
	}

	if timeout := svc.cfg.LLM.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return svc.completer.Complete(ctx, req)
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	s, err := svc.store.Stats(ctx)

	stats := Stats{
		TotalRecords: s.TotalRecords,
		BackendState: s.State,
		Backend:      s.Backend,
		Persistent:   s.Persistent,
		Strategy:     svc.embedder.Strategy(),
		Dimension:    svc.embedder.Dimension(),
	}

	return stats, err
}

func (svc *service) Reset(ctx context.Context) error {
	return svc.store.Reset(ctx)
}

func (svc *service) Close() error {
	return svc.store.Close()
}
