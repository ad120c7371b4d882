package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flarexio/docrag/embedding/dense"
	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/embedding/tfidf"
)

type brokenStrategy struct {
	initErr error
	fitErr  error
}

func (s *brokenStrategy) Name() string { return "broken" }

func (s *brokenStrategy) Init(ctx context.Context) error { return s.initErr }

func (s *brokenStrategy) Fit(ctx context.Context, corpus []string) error { return s.fitErr }

func (s *brokenStrategy) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("broken")
}

func (s *brokenStrategy) Dimension() int { return 0 }

type shortStrategy struct {
	dim int
}

func (s *shortStrategy) Name() string                                   { return "short" }
func (s *shortStrategy) Init(ctx context.Context) error                 { return nil }
func (s *shortStrategy) Fit(ctx context.Context, corpus []string) error { return nil }
func (s *shortStrategy) Dimension() int                                 { return s.dim }

func (s *shortStrategy) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dim)
		for j := range v {
			v[j] = float32(j + 1)
		}
		vecs[i] = v
	}

	return vecs, nil
}

func TestProviderFallsBackToTFIDF(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	dense := &brokenStrategy{initErr: errors.New("model not installed")}

	p, err := NewProvider(ctx, Options{Dimension: DefaultDimension}, SeedCorpus,
		dense,
		tfidf.New(tfidf.Config{OOVBuckets: 32}),
		hashing.New(DefaultDimension),
	)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(StrategyTFIDF, p.Strategy())

	vecs, err := p.Encode(ctx, []string{"machine learning", "revenue", "zebra"})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	for _, v := range vecs {
		assert.Len(v, DefaultDimension)
	}
}

func TestProviderSkipsFailedFit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p, err := NewProvider(ctx, Options{Dimension: 64}, nil,
		tfidf.New(tfidf.Config{}),
		hashing.New(64),
	)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(StrategyHashing, p.Strategy())
}

func TestProviderFallsBackToHashing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	unreachable := dense.New("nomic-embed-text", func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	})

	// no fit corpus, so the vectorizer cannot build a vocabulary
	p, err := NewProvider(ctx, Options{Dimension: DefaultDimension}, nil,
		unreachable,
		tfidf.New(tfidf.Config{OOVBuckets: 32}),
		hashing.New(2*DefaultDimension),
	)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(StrategyHashing, p.Strategy())
	assert.Equal(DefaultDimension, p.Dimension())

	texts := []string{
		"revenue rose",
		"",
		"Region | Headcount\nAPAC | 120",
		strings.Repeat("a long scanned page of text ", 200),
	}

	vecs, err := p.Encode(ctx, texts)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Len(vecs, len(texts))
	for _, v := range vecs {
		assert.Len(v, DefaultDimension)
	}
}

func TestProviderInitTimeout(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	stuck := dense.New("nomic-embed-text", func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	type result struct {
		p   *Provider
		err error
	}

	done := make(chan result, 1)
	go func() {
		p, err := NewProvider(ctx, Options{Dimension: 64, Timeout: 50 * time.Millisecond}, nil,
			stuck,
			hashing.New(64),
		)
		done <- result{p, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			assert.Fail(r.err.Error())
			return
		}

		assert.Equal(StrategyHashing, r.p.Strategy())

	case <-time.After(2 * time.Second):
		assert.Fail("provider construction did not honour the timeout")
	}
}

func TestProviderUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	_, err := NewProvider(ctx, Options{Dimension: 8}, SeedCorpus,
		&brokenStrategy{initErr: errors.New("down")},
		&brokenStrategy{fitErr: errors.New("bad corpus")},
	)
	assert.ErrorIs(err, ErrUnavailable)

	_, err = NewProvider(ctx, Options{}, SeedCorpus, hashing.New(8))
	assert.ErrorIs(err, ErrInvalidDimension)
}

func TestProviderReconcilesDimension(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	padded, err := NewProvider(ctx, Options{Dimension: 6}, nil, &shortStrategy{dim: 3})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	v, err := padded.EncodeOne(ctx, "anything")
	assert.NoError(err)
	assert.Equal([]float32{1, 2, 3, 0, 0, 0}, v)

	truncated, err := NewProvider(ctx, Options{Dimension: 2}, nil, &shortStrategy{dim: 3})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	v, err = truncated.EncodeOne(ctx, "anything")
	assert.NoError(err)
	assert.Equal([]float32{1, 2}, v)
}

func TestProviderEncodeFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p, err := NewProvider(ctx, Options{Dimension: 8}, nil, &brokenStrategy{})
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	_, err = p.Encode(ctx, []string{"text"})
	assert.ErrorIs(err, ErrUnavailable)

	vecs, err := p.Encode(ctx, nil)
	assert.NoError(err)
	assert.Empty(vecs)
}

func TestProviderFingerprint(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	a, _ := NewProvider(ctx, Options{Dimension: 32}, SeedCorpus, tfidf.New(tfidf.Config{}))
	b, _ := NewProvider(ctx, Options{Dimension: 32}, SeedCorpus, tfidf.New(tfidf.Config{}))
	c, _ := NewProvider(ctx, Options{Dimension: 32}, []string{"another corpus entirely"}, tfidf.New(tfidf.Config{}))
	d, _ := NewProvider(ctx, Options{Dimension: 64}, SeedCorpus, tfidf.New(tfidf.Config{}))

	assert.Equal(a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(a.Fingerprint(), d.Fingerprint())
}
