package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/docrag"
)

var ErrUnknownTool = errors.New("unknown tool")

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id any, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `DocRAG answers questions from a library of ingested PDF documents (text, tables and OCR'd images).

Available tools:
- ask_documents: ask a natural language question; answers cite page numbers and report a confidence between 0 and 1
- document_stats: show how many chunks are indexed and which embedding strategy is active

Pass the session_id returned by ask_documents to keep a follow-up question in the same conversation.`

const (
	ToolAskDocuments  = "ask_documents"
	ToolDocumentStats = "document_stats"
)

func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolAskDocuments,
			mcp.WithDescription("Answer a question using the ingested documents"),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to answer"),
			),
			mcp.WithString("session_id",
				mcp.Description("Conversation session to continue"),
			),
		),
		mcp.NewTool(ToolDocumentStats,
			mcp.WithDescription("Report the number of indexed chunks and the store state"),
		),
	}
}

func InitializeEndpoint() MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "docrag",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint() MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

func ListToolsEndpoint() MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

type askArguments struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// CallToolEndpoint runs the docrag tools on top of the endpoint set, so it
// serves a local service and a remote one reached over NATS alike.
func CallToolEndpoint(endpoints docrag.EndpointSet) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		var (
			result *mcp.CallToolResult
			err    error
		)

		switch params.Name {
		case ToolAskDocuments:
			result, err = askDocuments(ctx, endpoints, params)

		case ToolDocumentStats:
			result, err = documentStats(ctx, endpoints)

		default:
			return errorResponse(req.ID, mcp.INVALID_PARAMS, ErrUnknownTool.Error()+": "+params.Name)
		}

		if err != nil {
			result = mcp.NewToolResultError(err.Error())
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func askDocuments(ctx context.Context, endpoints docrag.EndpointSet, params mcp.CallToolParams) (*mcp.CallToolResult, error) {
	bs, err := json.Marshal(params.Arguments)
	if err != nil {
		return nil, err
	}

	var args askArguments
	if err := json.Unmarshal(bs, &args); err != nil {
		return nil, err
	}

	resp, err := endpoints.Query(ctx, docrag.QueryRequest{
		Question:  args.Question,
		SessionID: args.SessionID,
	})
	answer, ok := resp.(docrag.QueryResponse)
	if err != nil {
		if ok {
			return mcp.NewToolResultError(answer.Answer + " (" + err.Error() + ")"), nil
		}

		return nil, err
	}

	if !ok {
		return nil, errors.New("invalid response type")
	}

	answer.Sources = nil

	meta, err := json.Marshal(&answer)
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(answer.Answer),
			mcp.NewTextContent(string(meta)),
		},
	}, nil
}

func documentStats(ctx context.Context, endpoints docrag.EndpointSet) (*mcp.CallToolResult, error) {
	resp, err := endpoints.Stats(ctx, nil)
	if err != nil {
		return nil, err
	}

	bs, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(bs)), nil
}
