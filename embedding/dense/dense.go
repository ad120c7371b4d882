package dense

import (
	"context"
	"errors"
	"strconv"

	"github.com/philippgille/chromem-go"
)

var (
	ErrNotConfigured    = errors.New("dense: embedding model not configured")
	ErrUnsupported      = errors.New("dense: unsupported provider")
	ErrEmptyEmbedding   = errors.New("dense: model returned an empty embedding")
	ErrDimensionChanged = errors.New("dense: model changed its output dimension")
)

type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

type Config struct {
	Provider  Provider `yaml:"provider"`
	Model     string   `yaml:"model"`
	BaseURL   string   `yaml:"baseURL"`
	APIKeyEnv string   `yaml:"apiKeyEnv"`
}

// NewEmbeddingFunc resolves a chromem-go embedding function for the
// configured model server.
func NewEmbeddingFunc(cfg Config, apiKey string) (chromem.EmbeddingFunc, error) {
	if cfg.Model == "" {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case ProviderOllama:
		return chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), nil

	case ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}

		return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, cfg.Model, nil), nil

	case "":
		return nil, ErrNotConfigured

	default:
		return nil, ErrUnsupported
	}
}

const probeText = "embedding probe"

// Strategy wraps a pretrained embedding model. It needs no fitting; Init
// probes the model once to learn its native dimension.
type Strategy struct {
	model     string
	embed     chromem.EmbeddingFunc
	dimension int
}

func New(model string, embed chromem.EmbeddingFunc) *Strategy {
	return &Strategy{
		model: model,
		embed: embed,
	}
}

func (s *Strategy) Name() string { return "dense" }

func (s *Strategy) Init(ctx context.Context) error {
	if s.embed == nil {
		return ErrNotConfigured
	}

	v, err := s.embed(ctx, probeText)
	if err != nil {
		return err
	}

	if len(v) == 0 {
		return ErrEmptyEmbedding
	}

	s.dimension = len(v)
	return nil
}

func (s *Strategy) Fit(ctx context.Context, corpus []string) error { return nil }

func (s *Strategy) Dimension() int { return s.dimension }

func (s *Strategy) Fingerprint() string {
	return s.model + ":" + strconv.Itoa(s.dimension)
}

func (s *Strategy) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.embed(ctx, text)
		if err != nil {
			return nil, err
		}

		if len(v) != s.dimension {
			return nil, ErrDimensionChanged
		}

		vectors[i] = v
	}

	return vectors, nil
}
