package hashing

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Embedder hashes word tokens and their character n-grams into a fixed
// number of buckets. It needs no fitting and is fully deterministic, which
// makes it the last resort of the fallback chain.
type Embedder struct {
	dimension    int
	ngram        int
	tokenPattern *regexp.Regexp
}

func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 384
	}

	return &Embedder{
		dimension:    dimension,
		ngram:        3,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

func (e *Embedder) Name() string { return "hashing" }

func (e *Embedder) Init(ctx context.Context) error { return nil }

func (e *Embedder) Fit(ctx context.Context, corpus []string) error { return nil }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Fingerprint() string {
	return "v1:" + strconv.Itoa(e.dimension) + ":" + strconv.Itoa(e.ngram)
}

func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors[i] = e.encode(text)
	}

	return vectors, nil
}

func (e *Embedder) encode(text string) []float32 {
	counts := make([]float64, e.dimension)
	buckets := uint64(e.dimension)

	for _, tok := range e.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		// whole token carries more weight than any single n-gram
		counts[xxhash.Sum64String("w:"+tok)%buckets] += 2

		runes := []rune(" " + tok + " ")
		for i := 0; i+e.ngram <= len(runes); i++ {
			gram := string(runes[i : i+e.ngram])
			counts[xxhash.Sum64String("g:"+gram)%buckets]++
		}
	}

	norm := 0.0
	for _, c := range counts {
		norm += c * c
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}

	for i, c := range counts {
		vec[i] = float32(c / norm)
	}

	return vec
}
