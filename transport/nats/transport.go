package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/vector"
)

const (
	HeaderSessionID    = "Session-ID"
	HeaderPartialWrite = "Partial-Write"
)

func AddDocumentHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.AddDocumentRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			if errors.Is(err, vector.ErrPartialWrite) {
				headers := micro.Headers{
					HeaderPartialWrite: []string{err.Error()},
				}

				r.RespondJSON(&resp, micro.WithHeaders(headers))
				return
			}

			r.Error("417", err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func QueryHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req docrag.QueryRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()

		sessionID := r.Headers().Get(HeaderSessionID)
		if sessionID != "" {
			ctx = context.WithValue(ctx, docrag.SessionID, sessionID)
		}

		resp, err := endpoint(ctx, req)
		if err != nil {
			var data []byte
			if result, ok := resp.(docrag.QueryResponse); ok {
				data, _ = json.Marshal(&result)
			}

			r.Error("417", err.Error(), data)
			return
		}

		result, ok := resp.(docrag.QueryResponse)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&result)
	}
}

func ClearHistoryHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		sessionID := string(r.Data())
		if sessionID == "" {
			r.Error("400", "session id is required", nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, sessionID)
		if err != nil {
			r.Error("417", err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func StatsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := context.Background()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			r.Error("417", err.Error(), nil)
			return
		}

		stats, ok := resp.(docrag.Stats)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&stats)
	}
}

func ResetHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := context.Background()
		_, err := endpoint(ctx, nil)
		if err != nil {
			r.Error("417", err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}
