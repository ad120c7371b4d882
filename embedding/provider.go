package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

var (
	ErrUnavailable       = errors.New("embedding unavailable")
	ErrInvalidDimension  = errors.New("invalid embedding dimension")
	ErrVectorCount       = errors.New("strategy returned wrong number of vectors")
	ErrStrategyNotConfig = errors.New("strategy not configured")
)

const (
	StrategyDense   = "dense"
	StrategyTFIDF   = "tfidf"
	StrategyHashing = "hashing"
)

const DefaultDimension = 384

// Strategy is one member of the fallback chain. Fit runs at most once,
// before any Encode call; Encode must not change strategy state.
type Strategy interface {
	Name() string
	Init(ctx context.Context) error
	Fit(ctx context.Context, corpus []string) error
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Fingerprinter is implemented by strategies whose vector space depends on
// internal state, such as a fitted vocabulary.
type Fingerprinter interface {
	Fingerprint() string
}

type Options struct {
	Dimension int
	Timeout   time.Duration
}

// Provider encodes text with the single strategy selected at construction.
type Provider struct {
	active      Strategy
	dimension   int
	timeout     time.Duration
	fingerprint string
	log         *zap.Logger
}

// NewProvider walks the chain in priority order and keeps the first
// strategy that both initializes and fits on the corpus.
func NewProvider(ctx context.Context, opts Options, corpus []string, strategies ...Strategy) (*Provider, error) {
	if opts.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	log := zap.L().With(
		zap.String("component", "embedding"),
		zap.Int("dimension", opts.Dimension),
	)

	for _, s := range strategies {
		log := log.With(
			zap.String("strategy", s.Name()),
		)

		err := withTimeout(ctx, opts.Timeout, s.Init)
		if err != nil {
			log.Warn("strategy init failed", zap.Error(err))
			continue
		}

		err = withTimeout(ctx, opts.Timeout, func(ctx context.Context) error {
			return s.Fit(ctx, corpus)
		})
		if err != nil {
			log.Warn("strategy fit failed", zap.Error(err))
			continue
		}

		p := &Provider{
			active:    s,
			dimension: opts.Dimension,
			timeout:   opts.Timeout,
			log:       log,
		}

		p.fingerprint = fingerprint(s, opts.Dimension)

		log.Info("strategy active", zap.Int("native_dimension", s.Dimension()))
		return p, nil
	}

	return nil, ErrUnavailable
}

// withTimeout bounds one lifecycle step so a stuck backend falls through to
// the next strategy.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(ctx)
}

func fingerprint(s Strategy, dimension int) string {
	state := ""
	if f, ok := s.(Fingerprinter); ok {
		state = f.Fingerprint()
	}

	h := xxhash.New()
	h.WriteString(s.Name())
	h.WriteString("|")
	h.WriteString(strconv.Itoa(dimension))
	h.WriteString("|")
	h.WriteString(state)

	return s.Name() + "-" + strconv.FormatUint(h.Sum64(), 16)
}

func (p *Provider) Strategy() string {
	return p.active.Name()
}

func (p *Provider) Dimension() int {
	return p.dimension
}

// Fingerprint identifies the vector space. Two providers with the same
// fingerprint produce comparable vectors.
func (p *Provider) Fingerprint() string {
	return p.fingerprint
}

func (p *Provider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	vectors, err := p.active.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, p.active.Name(), err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, p.active.Name(), ErrVectorCount)
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = Reconcile(v, p.dimension)
	}

	return out, nil
}

// EncodeOne is a convenience for query paths.
func (p *Provider) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// Reconcile zero-pads or truncates v to exactly d components.
func Reconcile(v []float32, d int) []float32 {
	out := make([]float32, d)
	copy(out, v)
	return out
}
