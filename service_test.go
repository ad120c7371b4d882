package docrag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/embedding/tfidf"
	"github.com/flarexio/docrag/llm"
	"github.com/flarexio/docrag/persistence/bolt"
	"github.com/flarexio/docrag/persistence/chromem"
	"github.com/flarexio/docrag/vector"
)

type fakeCompleter struct {
	answer   string
	err      error
	requests []llm.Request
}

func (c *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.requests = append(c.requests, req)

	if c.err != nil {
		return "", c.err
	}

	return c.answer, nil
}

type brokenEmbedder struct {
	*embedding.Provider
}

func (e *brokenEmbedder) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	return nil, embedding.ErrUnavailable
}

type docragTestSuite struct {
	suite.Suite
	ctx       context.Context
	cfg       Config
	provider  *embedding.Provider
	store     *vector.Store
	completer *fakeCompleter
	svc       Service
}

func (suite *docragTestSuite) SetupTest() {
	ctx := context.Background()

	cfg := Config{
		TopK: 3,
		Vector: vector.Config{
			Persistent: false,
			Collection: "documents",
		},
	}

	provider, err := embedding.NewProvider(ctx, embedding.Options{Dimension: embedding.DefaultDimension}, embedding.SeedCorpus,
		tfidf.New(tfidf.Config{OOVBuckets: 32}),
		hashing.New(embedding.DefaultDimension),
	)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	store := vector.NewStore(cfg.Vector, provider, chromem.NewOpener(), bolt.OpenManifest)
	if _, err := store.Initialize(ctx); err != nil {
		suite.Fail(err.Error())
		return
	}

	completer := &fakeCompleter{answer: "Revenue rose 12% in the third quarter (page 2)."}

	suite.ctx = ctx
	suite.cfg = cfg
	suite.provider = provider
	suite.store = store
	suite.completer = completer
	suite.svc = NewService(cfg, provider, store, completer)
}

func (suite *docragTestSuite) addReport() IngestResult {
	result, err := suite.svc.AddDocument(suite.ctx, "report.pdf", []document.Chunk{
		document.NewChunk("The company was founded in 1998 in Taipei.", document.ChunkTypeText, 1, nil),
		document.NewChunk("In the third quarter, quarterly revenue rose 12% to 4.2 million.", document.ChunkTypeText, 2, nil),
		document.NewChunk("Region | Headcount\nAPAC | 120\nEMEA | 80", document.ChunkTypeTable, 3, nil),
		document.NewChunk("Organisation chart scanned from the annual report", document.ChunkTypeImageOCR, 4, nil),
	})
	suite.Require().NoError(err)

	return result
}

func (suite *docragTestSuite) TestQueryWithoutDocuments() {
	resp, err := suite.svc.Query(suite.ctx, "what happened to revenue?", nil)
	suite.NoError(err)

	suite.Equal(QueryTypeNotReady, resp.QueryType)
	suite.Equal(NoDocumentsAnswer, resp.Answer)
	suite.Equal(ErrNoDocuments.Error(), resp.Error)
	suite.Equal(0.0, resp.Confidence)
	suite.Zero(resp.SourcesUsed)
	suite.Empty(suite.completer.requests)
}

func (suite *docragTestSuite) TestEmptyQuery() {
	suite.addReport()

	resp, err := suite.svc.Query(suite.ctx, "   ", nil)
	suite.NoError(err)
	suite.Equal(QueryTypeNotReady, resp.QueryType)
	suite.Equal(EmptyQueryAnswer, resp.Answer)
	suite.Equal(ErrEmptyQuery.Error(), resp.Error)
}

func (suite *docragTestSuite) TestAddDocument() {
	result := suite.addReport()

	suite.Equal(4, result.Submitted)
	suite.Equal(4, result.Accepted)
	suite.Equal(2, result.TypeCounts[document.ChunkTypeText])
	suite.Equal(1, result.TypeCounts[document.ChunkTypeTable])
	suite.Equal(1, result.TypeCounts[document.ChunkTypeImageOCR])

	stats, err := suite.svc.Stats(suite.ctx)
	suite.NoError(err)
	suite.Equal(4, stats.TotalRecords)
	suite.Equal(vector.StateReady, stats.BackendState)
	suite.Equal(embedding.StrategyTFIDF, stats.Strategy)
	suite.Equal(embedding.DefaultDimension, stats.Dimension)

	_, err = suite.svc.AddDocument(suite.ctx, "", nil)
	suite.ErrorIs(err, ErrInvalidDocumentName)

	_, err = suite.svc.AddDocument(suite.ctx, "empty.pdf", nil)
	suite.ErrorIs(err, ErrNoChunks)
}

func (suite *docragTestSuite) TestRetrievesRelevantChunk() {
	suite.addReport()

	v, err := suite.provider.EncodeOne(suite.ctx, "what happened to revenue?")
	suite.Require().NoError(err)

	hits, err := suite.store.Search(suite.ctx, v, 3)
	suite.Require().NoError(err)

	found := false
	for _, hit := range hits {
		if strings.Contains(hit.Record.Chunk.Content, "quarterly revenue rose 12%") {
			found = true
			suite.Greater(hit.Score, 0.0)
		}
	}
	suite.True(found)

	resp, err := suite.svc.Query(suite.ctx, "what happened to revenue?", nil)
	suite.NoError(err)

	suite.Equal(QueryTypeAnswered, resp.QueryType)
	suite.Equal(suite.completer.answer, resp.Answer)
	suite.Empty(resp.Error)
	suite.Greater(resp.SourcesUsed, 0)
	suite.LessOrEqual(resp.SourcesUsed, 3)
	suite.Greater(resp.Confidence, 0.0)
	suite.LessOrEqual(resp.Confidence, 1.0)
	suite.Contains(resp.ContextTypes, document.ChunkTypeText)

	suite.Len(suite.completer.requests, 1)
	suite.Equal(llm.SystemInstruction, suite.completer.requests[0].System)
}

func (suite *docragTestSuite) TestCompletionFailure() {
	suite.addReport()
	suite.completer.err = errors.New("503 service unavailable")

	resp, err := suite.svc.Query(suite.ctx, "what happened to revenue?", nil)
	suite.NoError(err)

	suite.Equal(ApologyAnswer, resp.Answer)
	suite.Equal("I apologize, but I encountered an error while generating a response. Please try again.", resp.Answer)
	suite.Equal(0.0, resp.Confidence)
	suite.Zero(resp.SourcesUsed)
	suite.Equal(QueryTypeUnavailable, resp.QueryType)
	suite.Contains(resp.Error, "503")
}

func (suite *docragTestSuite) TestNoContext() {
	suite.addReport()

	// only stopwords and single letters, nothing to match
	resp, err := suite.svc.Query(suite.ctx, "what is a?", nil)
	suite.NoError(err)

	suite.Equal(QueryTypeNoContext, resp.QueryType)
	suite.Equal(NoContextAnswer, resp.Answer)
	suite.Equal(0.0, resp.Confidence)
	suite.Empty(suite.completer.requests)
}

func (suite *docragTestSuite) TestEmbeddingFailure() {
	suite.addReport()

	svc := NewService(suite.cfg, &brokenEmbedder{suite.provider}, suite.store, suite.completer)

	resp, err := svc.Query(suite.ctx, "what happened to revenue?", nil)
	suite.ErrorIs(err, embedding.ErrUnavailable)
	suite.Equal(QueryTypeFailed, resp.QueryType)
	suite.Equal(FailedAnswer, resp.Answer)
	suite.Contains(resp.Error, embedding.ErrUnavailable.Error())
}

func (suite *docragTestSuite) TestHistoryPassedToCompletion() {
	suite.addReport()

	history := make([]conversation.Turn, 0, 10)
	for i := 0; i < 5; i++ {
		history = append(history,
			conversation.UserTurn("earlier question"),
			conversation.AssistantTurn("earlier answer"),
		)
	}

	_, err := suite.svc.Query(suite.ctx, "what happened to revenue?", history)
	suite.NoError(err)

	suite.Len(suite.completer.requests, 1)
	suite.Len(suite.completer.requests[0].Messages, 7)
}

func (suite *docragTestSuite) TestReset() {
	suite.addReport()

	suite.NoError(suite.svc.Reset(suite.ctx))

	stats, err := suite.svc.Stats(suite.ctx)
	suite.NoError(err)
	suite.Zero(stats.TotalRecords)
}

func (suite *docragTestSuite) TearDownTest() {
	if suite.svc != nil {
		suite.svc.Close()
	}
}

func TestDocragTestSuite(t *testing.T) {
	suite.Run(t, new(docragTestSuite))
}
