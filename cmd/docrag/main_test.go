package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/embedding"
)

func TestStrategies(t *testing.T) {
	assert := assert.New(t)

	cfg := docrag.EmbeddingConfig{
		Dimension:  384,
		Strategies: []string{embedding.StrategyTFIDF, embedding.StrategyHashing},
	}

	chain, err := strategies(cfg, zap.NewNop())
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	if assert.Len(chain, 2) {
		assert.Equal(embedding.StrategyTFIDF, chain[0].Name())
		assert.Equal(embedding.StrategyHashing, chain[1].Name())
	}

	cfg.Strategies = append(cfg.Strategies, "word2vec")

	_, err = strategies(cfg, zap.NewNop())
	assert.ErrorIs(err, embedding.ErrStrategyNotConfig)
	assert.ErrorContains(err, "word2vec")
}
