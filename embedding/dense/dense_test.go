package dense

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitProbesDimension(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := New("fake", func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0, 0, 0}, nil
	})

	err := s.Init(ctx)
	assert.NoError(err)
	assert.Equal(5, s.Dimension())

	vecs, err := s.Encode(ctx, []string{"a", "b"})
	assert.NoError(err)
	assert.Len(vecs, 2)
}

func TestInitFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	down := errors.New("connection refused")
	s := New("fake", func(ctx context.Context, text string) ([]float32, error) {
		return nil, down
	})

	assert.ErrorIs(s.Init(ctx), down)
	assert.ErrorIs(New("none", nil).Init(ctx), ErrNotConfigured)

	empty := New("empty", func(ctx context.Context, text string) ([]float32, error) {
		return []float32{}, nil
	})
	assert.ErrorIs(empty.Init(ctx), ErrEmptyEmbedding)
}

func TestNewEmbeddingFunc(t *testing.T) {
	assert := assert.New(t)

	_, err := NewEmbeddingFunc(Config{Provider: ProviderOllama}, "")
	assert.ErrorIs(err, ErrNotConfigured)

	_, err = NewEmbeddingFunc(Config{Provider: "cohere", Model: "x"}, "")
	assert.ErrorIs(err, ErrUnsupported)

	fn, err := NewEmbeddingFunc(Config{Provider: ProviderOllama, Model: "nomic-embed-text"}, "")
	assert.NoError(err)
	assert.NotNil(fn)

	fn, err = NewEmbeddingFunc(Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small"}, "key")
	assert.NoError(err)
	assert.NotNil(fn)
}
