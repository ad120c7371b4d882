package prompt

import (
	"slices"

	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/vector"
)

// MaxHistoryTurns bounds the history carried into a prompt to the last
// three exchanges.
const MaxHistoryTurns = 6

type SourceBlock struct {
	Rank         int                `json:"rank"`
	DocumentName string             `json:"document_name"`
	PageNumber   int                `json:"page_number"`
	ChunkType    document.ChunkType `json:"chunk_type"`
	Score        float64            `json:"score"`
	Content      string             `json:"content"`
}

// Context is the structured input of one completion call. Sources keep the
// rank order of the hits, most relevant first.
type Context struct {
	Question string              `json:"question"`
	Sources  []SourceBlock       `json:"sources"`
	History  []conversation.Turn `json:"history"`
}

func Build(question string, hits []vector.SearchHit, history []conversation.Turn) Context {
	sources := make([]SourceBlock, len(hits))
	for i, hit := range hits {
		sources[i] = SourceBlock{
			Rank:         i + 1,
			DocumentName: hit.Record.DocumentName,
			PageNumber:   hit.Record.Chunk.PageNumber,
			ChunkType:    hit.Record.Chunk.ChunkType,
			Score:        hit.Score,
			Content:      hit.Record.Chunk.Content,
		}
	}

	return Context{
		Question: question,
		Sources:  sources,
		History:  Truncate(history, MaxHistoryTurns),
	}
}

// Truncate keeps the most recent n turns in their original order.
func Truncate(history []conversation.Turn, n int) []conversation.Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}

	out := make([]conversation.Turn, len(history))
	copy(out, history)
	return out
}

// ChunkTypes lists the distinct chunk types among the sources, sorted.
func (c Context) ChunkTypes() []document.ChunkType {
	seen := make(map[document.ChunkType]struct{})
	types := make([]document.ChunkType, 0)
	for _, s := range c.Sources {
		if _, ok := seen[s.ChunkType]; ok {
			continue
		}

		seen[s.ChunkType] = struct{}{}
		types = append(types, s.ChunkType)
	}

	slices.Sort(types)
	return types
}
