package docrag

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "docrag"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) AddDocument(ctx context.Context, documentName string, chunks []document.Chunk) (IngestResult, error) {
	log := mw.log.With(
		zap.String("action", "add_document"),
		zap.String("document", documentName),
		zap.Int("chunks", len(chunks)),
	)

	result, err := mw.next.AddDocument(ctx, documentName, chunks)
	if err != nil {
		if errors.Is(err, vector.ErrPartialWrite) {
			log.Warn(err.Error(),
				zap.Int("accepted", result.Accepted),
				zap.Any("submitted_types", document.CountByType(chunks)),
			)
			return result, err
		}

		log.Error(err.Error())
		return result, err
	}

	log.Info("document added",
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Int("text", result.TypeCounts[document.ChunkTypeText]),
		zap.Int("table", result.TypeCounts[document.ChunkTypeTable]),
		zap.Int("image_ocr", result.TypeCounts[document.ChunkTypeImageOCR]),
	)
	return result, nil
}

func (mw *loggingMiddleware) Query(ctx context.Context, question string, history []conversation.Turn) (QueryResponse, error) {
	log := mw.log.With(
		zap.String("action", "query"),
		zap.Int("history", len(history)),
	)

	sessionID, ok := ctx.Value(SessionID).(string)
	if ok {
		log = log.With(
			zap.String("session_id", sessionID),
		)
	}

	resp, err := mw.next.Query(ctx, question, history)
	if err != nil {
		log.Error(err.Error(), zap.String("query_type", string(resp.QueryType)))
		return resp, err
	}

	if resp.QueryType == QueryTypeNotReady {
		log.Info("query not ready", zap.String("reason", resp.Error))
		return resp, nil
	}

	log.Info("query answered",
		zap.String("query_type", string(resp.QueryType)),
		zap.Int("sources_used", resp.SourcesUsed),
		zap.Float64("confidence", resp.Confidence),
	)
	return resp, nil
}

func (mw *loggingMiddleware) Stats(ctx context.Context) (Stats, error) {
	log := mw.log.With(
		zap.String("action", "stats"),
	)

	stats, err := mw.next.Stats(ctx)
	if err != nil {
		log.Error(err.Error())
		return stats, err
	}

	log.Debug("stats collected",
		zap.Int("total_records", stats.TotalRecords),
		zap.Stringer("backend_state", stats.BackendState),
	)
	return stats, nil
}

func (mw *loggingMiddleware) Reset(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "reset"),
	)

	err := mw.next.Reset(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("store reset")
	return nil
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}
