package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrFrozen      = errors.New("tfidf: vectorizer already fitted")
	ErrNotFitted   = errors.New("tfidf: vectorizer not fitted")
	ErrEmptyCorpus = errors.New("tfidf: empty corpus")
	ErrNoTokens    = errors.New("tfidf: no tokens found in corpus")
)

type Config struct {
	MaxFeatures int `yaml:"maxFeatures"`
	NgramMax    int `yaml:"ngramMax"`
	OOVBuckets  int `yaml:"oovBuckets"`
}

// Vectorizer is a TF-IDF embedder over unigrams and n-grams. The vocabulary
// is built by a single Fit call and frozen afterwards. Out-of-vocabulary
// words are hashed into a fixed number of leading buckets, so unseen terms
// still contribute to similarity without changing the vector space.
type Vectorizer struct {
	cfg Config

	mu         sync.RWMutex
	vocabulary map[string]int
	idf        []float64
	oovWeight  float64
	fitted     bool

	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func New(cfg Config) *Vectorizer {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 352
	}

	if cfg.NgramMax <= 0 {
		cfg.NgramMax = 2
	}

	if cfg.OOVBuckets < 0 {
		cfg.OOVBuckets = 0
	}

	return &Vectorizer{
		cfg:          cfg,
		vocabulary:   make(map[string]int),
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (v *Vectorizer) Name() string { return "tfidf" }

func (v *Vectorizer) Init(ctx context.Context) error { return nil }

// Fit builds the vocabulary and IDF table. It succeeds at most once.
func (v *Vectorizer) Fit(ctx context.Context, corpus []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fitted {
		return ErrFrozen
	}

	if len(corpus) == 0 {
		return ErrEmptyCorpus
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, term := range v.terms(v.tokenize(text)) {
			if _, ok := seen[term]; ok {
				continue
			}

			seen[term] = struct{}{}
			df[term]++
		}
	}

	if len(df) == 0 {
		return ErrNoTokens
	}

	type termFreq struct {
		term string
		freq int
	}

	tf := make([]termFreq, 0, len(df))
	for term, freq := range df {
		tf = append(tf, termFreq{term, freq})
	}

	sort.Slice(tf, func(i, j int) bool {
		if tf[i].freq != tf[j].freq {
			return tf[i].freq > tf[j].freq
		}

		return tf[i].term < tf[j].term
	})

	if len(tf) > v.cfg.MaxFeatures {
		tf = tf[:v.cfg.MaxFeatures]
	}

	// Stable ordering for vocabulary
	terms := make([]string, len(tf))
	for i := range tf {
		terms[i] = tf[i].term
	}
	sort.Strings(terms)

	n := float64(len(corpus))

	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = v.cfg.OOVBuckets + i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	v.oovWeight = math.Log(1+n) + 1.0
	v.fitted = true

	return nil
}

func (v *Vectorizer) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.cfg.OOVBuckets + len(v.idf)
}

func (v *Vectorizer) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.fitted {
		return nil, ErrNotFitted
	}

	dim := v.cfg.OOVBuckets + len(v.idf)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors[i] = v.encode(text, dim)
	}

	return vectors, nil
}

func (v *Vectorizer) encode(text string, dim int) []float32 {
	weights := make([]float64, dim)

	tokens := v.tokenize(text)
	for _, term := range v.terms(tokens) {
		if idx, ok := v.vocabulary[term]; ok {
			weights[idx] += v.idf[idx-v.cfg.OOVBuckets]
		}
	}

	if v.cfg.OOVBuckets > 0 {
		for _, tok := range tokens {
			if _, ok := v.vocabulary[tok]; ok {
				continue
			}

			bucket := xxhash.Sum64String(tok) % uint64(v.cfg.OOVBuckets)
			weights[bucket] += v.oovWeight
		}
	}

	// L2 normalize
	norm := 0.0
	for _, w := range weights {
		norm += w * w
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, dim)
	if norm == 0 {
		return vec
	}

	for i, w := range weights {
		vec[i] = float32(w / norm)
	}

	return vec
}

// Fingerprint hashes the frozen vocabulary so a changed fit is detectable.
func (v *Vectorizer) Fingerprint() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	terms := make([]string, len(v.vocabulary))
	for term, idx := range v.vocabulary {
		terms[idx-v.cfg.OOVBuckets] = term
	}

	h := xxhash.New()
	h.WriteString(strconv.Itoa(v.cfg.OOVBuckets))
	for i, term := range terms {
		h.WriteString("|")
		h.WriteString(term)
		h.WriteString(strconv.FormatFloat(v.idf[i], 'g', -1, 64))
	}

	return strconv.FormatUint(h.Sum64(), 16)
}

func (v *Vectorizer) tokenize(text string) []string {
	raw := v.tokenPattern.FindAllString(strings.ToLower(text), -1)

	out := raw[:0]
	for _, tok := range raw {
		if len([]rune(tok)) < 2 {
			continue
		}

		if _, isStop := v.stopwords[tok]; isStop {
			continue
		}

		out = append(out, tok)
	}

	return out
}

// terms expands tokens into unigrams and n-grams up to NgramMax.
func (v *Vectorizer) terms(tokens []string) []string {
	terms := make([]string, 0, len(tokens)*v.cfg.NgramMax)
	for n := 1; n <= v.cfg.NgramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}

	return terms
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "has", "have", "had", "i", "you", "we", "they", "he", "she", "its", "our", "their", "there", "here",
	}

	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}

	return m
}
