package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/docrag"

	mcpE "github.com/flarexio/docrag/mcp"
)

func AddRouters(r *gin.Engine, endpoints docrag.EndpointSet) {
	api := r.Group("/api")
	{
		api.POST("/documents", AddDocumentHandler(endpoints.AddDocument))
		api.DELETE("/documents", ResetHandler(endpoints.Reset))
		api.POST("/query", QueryHandler(endpoints.Query))
		api.DELETE("/sessions/:session_id", ClearHistoryHandler(endpoints.ClearHistory))
		api.GET("/stats", StatsHandler(endpoints.Stats))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp")
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
