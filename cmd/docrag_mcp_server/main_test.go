package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	mcpE "github.com/flarexio/docrag/mcp"
)

func TestStdioMCPServerListen(t *testing.T) {
	assert := assert.New(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
	}, "\n")

	var out bytes.Buffer

	s := NewStdioMCPServer(strings.NewReader(input), &out)
	s.AddEndpoint(mcp.MethodPing, mcpE.PingEndpoint())
	s.AddEndpoint(mcp.MethodToolsList, mcpE.ListToolsEndpoint())

	err := s.AddEndpoint(mcp.MethodPing, mcpE.PingEndpoint())
	assert.Error(err)

	err = s.Listen(context.Background())
	assert.NoError(err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if !assert.Len(lines, 3) {
		return
	}

	assert.JSONEq(`{"jsonrpc":"2.0","id":1,"result":{}}`, lines[0])
	assert.Contains(lines[1], `"code":-32601`)
	assert.Contains(lines[2], `"ask_documents"`)
}
