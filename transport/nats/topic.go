package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
)

func AddEndpoints(group micro.Group, endpoints docrag.EndpointSet) {
	group.AddEndpoint("add_document", AddDocumentHandler(endpoints.AddDocument))
	group.AddEndpoint("query", QueryHandler(endpoints.Query))
	group.AddEndpoint("clear_history", ClearHistoryHandler(endpoints.ClearHistory))
	group.AddEndpoint("stats", StatsHandler(endpoints.Stats))
	group.AddEndpoint("reset", ResetHandler(endpoints.Reset))
}
