package docrag

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/google/uuid"

	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
)

type EndpointSet struct {
	AddDocument  endpoint.Endpoint
	Query        endpoint.Endpoint
	ClearHistory endpoint.Endpoint
	Stats        endpoint.Endpoint
	Reset        endpoint.Endpoint
}

// MakeEndpoints binds the service to the session store. Conversation
// history lives here, at the front end boundary, not in the service.
func MakeEndpoints(svc Service, sessions conversation.Store) EndpointSet {
	return EndpointSet{
		AddDocument:  AddDocumentEndpoint(svc),
		Query:        QueryEndpoint(svc, sessions),
		ClearHistory: ClearHistoryEndpoint(sessions),
		Stats:        StatsEndpoint(svc),
		Reset:        ResetEndpoint(svc),
	}
}

type AddDocumentRequest struct {
	DocumentName string           `json:"document_name"`
	Chunks       []document.Chunk `json:"chunks"`
}

// AddDocumentEndpoint returns the result even on a partial write, the
// accepted count is the truth.
func AddDocumentEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AddDocumentRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.AddDocument(ctx, req.DocumentName, req.Chunks)
	}
}

type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

func QueryEndpoint(svc Service, sessions conversation.Store) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		sessionID := req.SessionID
		if sessionID == "" {
			if id, ok := ctx.Value(SessionID).(string); ok {
				sessionID = id
			}
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ctx = context.WithValue(ctx, SessionID, sessionID)

		history, err := sessions.History(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		resp, err := svc.Query(ctx, req.Question, history)
		resp.SessionID = sessionID
		if err != nil {
			return resp, err
		}

		if resp.QueryType == QueryTypeNotReady {
			return resp, nil
		}

		err = sessions.Append(ctx, sessionID,
			conversation.UserTurn(req.Question),
			conversation.AssistantTurn(resp.Answer),
		)
		if err != nil {
			return nil, err
		}

		return resp, nil
	}
}

func ClearHistoryEndpoint(sessions conversation.Store) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		sessionID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		if sessionID == "" {
			return nil, ErrInvalidSessionID
		}

		err := sessions.Clear(ctx, sessionID)
		return nil, err
	}
}

func StatsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Stats(ctx)
	}
}

func ResetEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		err := svc.Reset(ctx)
		return nil, err
	}
}
