package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/vector"
)

// QueryTimeout covers retrieval plus a completion round trip, which
// regularly outlasts nats.DefaultTimeout.
const QueryTimeout = 90 * time.Second

func MakeEndpoints(nc *nats.Conn, prefix string) docrag.EndpointSet {
	return docrag.EndpointSet{
		AddDocument:  AddDocumentEndpoint(nc, prefix+".add_document"),
		Query:        QueryEndpoint(nc, prefix+".query"),
		ClearHistory: ClearHistoryEndpoint(nc, prefix+".clear_history"),
		Stats:        StatsEndpoint(nc, prefix+".stats"),
		Reset:        ResetEndpoint(nc, prefix+".reset"),
	}
}

func AddDocumentEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.AddDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		ctx, cancel := withTimeout(ctx, QueryTimeout)
		defer cancel()

		resp, err := nc.RequestWithContext(ctx, topic, data)
		if err != nil {
			return nil, err
		}

		if err := Error(resp); err != nil {
			return nil, err
		}

		var result docrag.IngestResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		if reason := resp.Header.Get(HeaderPartialWrite); reason != "" {
			return result, fmt.Errorf("%w: %s", vector.ErrPartialWrite, reason)
		}

		return result, nil
	}
}

func QueryEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(docrag.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		msg := nats.NewMsg(topic)
		msg.Data = data

		if sessionID, ok := ctx.Value(docrag.SessionID).(string); ok {
			msg.Header.Set(HeaderSessionID, sessionID)
		}

		ctx, cancel := withTimeout(ctx, QueryTimeout)
		defer cancel()

		resp, err := nc.RequestMsgWithContext(ctx, msg)
		if err != nil {
			return nil, err
		}

		queryErr := Error(resp)
		if queryErr != nil && len(resp.Data) == 0 {
			return nil, queryErr
		}

		var result docrag.QueryResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			if queryErr != nil {
				return nil, queryErr
			}

			return nil, err
		}

		return result, queryErr
	}
}

func ClearHistoryEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		sessionID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := nc.Request(topic, []byte(sessionID), nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		return nil, Error(resp)
	}
}

func StatsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := nc.Request(topic, nil, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(resp); err != nil {
			return nil, err
		}

		var stats docrag.Stats
		if err := json.Unmarshal(resp.Data, &stats); err != nil {
			return nil, err
		}

		return stats, nil
	}
}

func ResetEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := nc.Request(topic, nil, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		return nil, Error(resp)
	}
}

// withTimeout keeps a caller deadline and only adds one when missing.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return errors.New(code + ":" + description)
}
