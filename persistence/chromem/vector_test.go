package chromem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/vector"
)

func record(id string, page int, v ...float32) vector.Record {
	return vector.Record{
		ID:           id,
		DocumentName: "report.pdf",
		Chunk:        document.NewChunk("content of "+id, document.ChunkTypeTable, page, map[string]any{"source": "ocr"}),
		Vector:       v,
	}
}

func TestEphemeralBackend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	backend, err := NewOpener().OpenEphemeral(ctx, vector.Config{Collection: "test"})
	if err != nil {
		assert.Fail(err.Error())
		return
	}
	defer backend.Close()

	n, err := backend.Upsert(ctx, []vector.Record{
		record("a", 1, 1, 0, 0),
		record("b", 2, 0, 1, 0),
		record("c", 3, 1, 1, 0),
	})
	assert.NoError(err)
	assert.Equal(3, n)

	count, err := backend.Count(ctx)
	assert.NoError(err)
	assert.Equal(3, count)

	hits, err := backend.Query(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Len(hits, 3)
	assert.Equal("a", hits[0].Record.ID)
	assert.InDelta(1.0, hits[0].Score, 1e-6)
	assert.Equal("report.pdf", hits[0].Record.DocumentName)
	assert.Equal(document.ChunkTypeTable, hits[0].Record.Chunk.ChunkType)
	assert.Equal(1, hits[0].Record.Chunk.PageNumber)
	assert.Equal("ocr", hits[0].Record.Chunk.Metadata["source"])

	err = backend.DeleteAll(ctx)
	assert.NoError(err)

	count, err = backend.Count(ctx)
	assert.NoError(err)
	assert.Zero(count)

	hits, err = backend.Query(ctx, []float32{1, 0, 0}, 10)
	assert.NoError(err)
	assert.Empty(hits)
}

func TestUpsertLastWriteWins(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	backend, err := NewOpener().OpenEphemeral(ctx, vector.Config{Collection: "test"})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	backend.Upsert(ctx, []vector.Record{record("a", 1, 1, 0)})
	backend.Upsert(ctx, []vector.Record{record("a", 4, 0, 1)})

	count, _ := backend.Count(ctx)
	assert.Equal(1, count)

	hits, err := backend.Query(ctx, []float32{0, 1}, 1)
	assert.NoError(err)
	assert.Equal(4, hits[0].Record.Chunk.PageNumber)
}

func TestUpsertWithoutEmbedding(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	backend, err := NewOpener().OpenEphemeral(ctx, vector.Config{Collection: "test"})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	n, err := backend.Upsert(ctx, []vector.Record{
		record("a", 1, 1, 0),
		record("b", 1),
	})
	assert.ErrorIs(err, ErrEmbeddingRequired)
	assert.Equal(1, n)
}

func TestPersistentBackend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cfg := vector.Config{
		Persistent: true,
		Path:       t.TempDir(),
		Collection: "test",
	}

	backend, err := NewOpener().OpenPersistent(ctx, cfg)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	backend.Upsert(ctx, []vector.Record{record("a", 1, 1, 0), record("b", 1, 0, 1)})
	backend.Close()

	reopened, err := NewOpener().OpenPersistent(ctx, cfg)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	count, err := reopened.Count(ctx)
	assert.NoError(err)
	assert.Equal(2, count)
}

func TestPurge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cfg := vector.Config{
		Persistent: true,
		Path:       t.TempDir(),
		Collection: "test",
	}

	config := filepath.Join(cfg.Path, "config.yaml")
	if err := os.WriteFile(config, []byte("topK: 5\n"), 0o600); err != nil {
		assert.Fail(err.Error())
		return
	}

	opener := NewOpener()

	backend, err := opener.OpenPersistent(ctx, cfg)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	backend.Upsert(ctx, []vector.Record{record("a", 1, 1, 0)})
	backend.Close()

	assert.NoError(opener.Purge(cfg))
	assert.NoDirExists(filepath.Join(cfg.Path, Dirname))
	assert.FileExists(config)

	reopened, err := opener.OpenPersistent(ctx, cfg)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	count, err := reopened.Count(ctx)
	assert.NoError(err)
	assert.Zero(count)
}
