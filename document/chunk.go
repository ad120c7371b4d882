package document

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidChunkType  = errors.New("invalid chunk type")
	ErrInvalidPageNumber = errors.New("page number must be positive")
	ErrInvalidMetadata   = errors.New("metadata values must be scalars")
)

type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeTable    ChunkType = "table"
	ChunkTypeImageOCR ChunkType = "image_ocr"
)

func (t ChunkType) Valid() bool {
	switch t {
	case ChunkTypeText, ChunkTypeTable, ChunkTypeImageOCR:
		return true
	}

	return false
}

// Chunk is one unit of extracted document content. It is produced by the
// ingestion collaborator and never mutated afterwards.
type Chunk struct {
	Content    string         `json:"content" yaml:"content"`
	ChunkType  ChunkType      `json:"chunk_type" yaml:"chunk_type"`
	PageNumber int            `json:"page_number" yaml:"page_number"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewChunk builds a chunk with construction-time defaults: an empty type
// becomes text and a non-positive page becomes 1.
func NewChunk(content string, chunkType ChunkType, page int, metadata map[string]any) Chunk {
	if chunkType == "" {
		chunkType = ChunkTypeText
	}

	if page < 1 {
		page = 1
	}

	return Chunk{
		Content:    content,
		ChunkType:  chunkType,
		PageNumber: page,
		Metadata:   metadata,
	}
}

func (c *Chunk) UnmarshalJSON(data []byte) error {
	type raw Chunk

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	*c = NewChunk(r.Content, r.ChunkType, r.PageNumber, r.Metadata)
	return nil
}

func (c Chunk) Validate() error {
	if !c.ChunkType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChunkType, c.ChunkType)
	}

	if c.PageNumber < 1 {
		return ErrInvalidPageNumber
	}

	for k, v := range c.Metadata {
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:

		default:
			return fmt.Errorf("%w: %s", ErrInvalidMetadata, k)
		}
	}

	return nil
}

// CountByType tallies chunks per type, the statistic front ends display
// after an upload.
func CountByType(chunks []Chunk) map[ChunkType]int {
	counts := make(map[ChunkType]int)
	for _, c := range chunks {
		counts[c.ChunkType]++
	}

	return counts
}
