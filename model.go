package docrag

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag/conversation/redis"
	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/dense"
	"github.com/flarexio/docrag/embedding/tfidf"
	"github.com/flarexio/docrag/llm"
	"github.com/flarexio/docrag/prompt"
	"github.com/flarexio/docrag/vector"
)

var (
	ErrEmptyQuery          = errors.New("empty query")
	ErrNoDocuments         = errors.New("no documents available")
	ErrInvalidDocumentName = errors.New("invalid document name")
	ErrNoChunks            = errors.New("no chunks to add")
	ErrInvalidSessionID    = errors.New("invalid session id")
)

type ContextKey string

const (
	SessionID ContextKey = "session_id"
)

const DefaultTopK = 5

const (
	EmptyQueryAnswer  = "Please enter a question."
	NoDocumentsAnswer = "No documents are available yet. Please add a document before asking questions."
	NoContextAnswer   = "I don't have enough information in the available documents to answer that question."
	ApologyAnswer     = "I apologize, but I encountered an error while generating a response. Please try again."
	FailedAnswer      = "I couldn't process your question right now. Please try again later."
)

type Config struct {
	TopK         int                `json:"topK" yaml:"topK"`
	Embedding    EmbeddingConfig    `json:"embedding" yaml:"embedding"`
	Vector       vector.Config      `json:"vector" yaml:"vector"`
	LLM          llm.Config         `json:"llm" yaml:"llm"`
	Conversation ConversationConfig `json:"conversation" yaml:"conversation"`
}

type EmbeddingConfig struct {
	Dimension  int          `json:"dimension" yaml:"dimension"`
	Strategies []string     `json:"strategies" yaml:"strategies"`
	Timeout    Duration     `json:"timeout" yaml:"timeout"`
	Corpus     []string     `json:"corpus" yaml:"corpus"`
	Dense      dense.Config `json:"dense" yaml:"dense"`
	TFIDF      tfidf.Config `json:"tfidf" yaml:"tfidf"`
}

type ConversationBackend string

const (
	ConversationBackendMemory ConversationBackend = "memory"
	ConversationBackendRedis  ConversationBackend = "redis"
)

type ConversationConfig struct {
	Backend ConversationBackend `json:"backend" yaml:"backend"`
	Redis   redis.Config        `json:"redis" yaml:"redis"`
}

// WithDefaults fills every unset key. Relative paths are resolved against
// the service path.
func (cfg Config) WithDefaults(path string) Config {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = embedding.DefaultDimension
	}

	if len(cfg.Embedding.Strategies) == 0 {
		cfg.Embedding.Strategies = []string{
			embedding.StrategyDense,
			embedding.StrategyTFIDF,
			embedding.StrategyHashing,
		}
	}

	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = Duration(30 * time.Second)
	}

	for i, corpus := range cfg.Embedding.Corpus {
		if !filepath.IsAbs(corpus) {
			cfg.Embedding.Corpus[i] = filepath.Join(path, corpus)
		}
	}

	if cfg.Embedding.TFIDF.MaxFeatures <= 0 && cfg.Embedding.TFIDF.OOVBuckets == 0 {
		cfg.Embedding.TFIDF.OOVBuckets = 32
		cfg.Embedding.TFIDF.MaxFeatures = cfg.Embedding.Dimension - 32
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "chromem"
	}

	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = vector.DefaultCollection
	}

	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "vectors"
	}

	if !filepath.IsAbs(cfg.Vector.Path) {
		cfg.Vector.Path = filepath.Join(path, cfg.Vector.Path)
	}

	defaults := llm.DefaultConfig()

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaults.BaseURL
	}

	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = defaults.APIKeyEnv
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaults.Model
	}

	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = defaults.Temperature
	}

	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = defaults.MaxTokens
	}

	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = defaults.Timeout
	}

	if cfg.Conversation.Backend == "" {
		cfg.Conversation.Backend = ConversationBackendMemory
	}

	return cfg
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

type QueryType string

const (
	QueryTypeAnswered    QueryType = "answered"
	QueryTypeNoContext   QueryType = "no_context"
	QueryTypeNotReady    QueryType = "not_ready"
	QueryTypeUnavailable QueryType = "unavailable"
	QueryTypeFailed      QueryType = "failed"
)

type QueryResponse struct {
	Answer       string               `json:"answer"`
	SourcesUsed  int                  `json:"sources_used"`
	Confidence   float64              `json:"confidence"`
	ContextTypes []document.ChunkType `json:"context_types"`
	QueryType    QueryType            `json:"query_type"`
	Sources      []prompt.SourceBlock `json:"sources,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func newResponse(answer string, queryType QueryType) QueryResponse {
	return QueryResponse{
		Answer:       answer,
		ContextTypes: []document.ChunkType{},
		QueryType:    queryType,
	}
}

// responseWithReason keeps the reason next to the fixed answer, so front ends
// receive a well-formed response even when the query failed.
func responseWithReason(answer string, queryType QueryType, reason error) QueryResponse {
	resp := newResponse(answer, queryType)
	resp.Error = reason.Error()
	return resp
}

type IngestResult struct {
	DocumentName string                     `json:"document_name"`
	Submitted    int                        `json:"submitted"`
	Accepted     int                        `json:"accepted"`
	Rejected     int                        `json:"rejected"`
	TypeCounts   map[document.ChunkType]int `json:"type_counts"`
}

type Stats struct {
	TotalRecords int          `json:"total_records"`
	BackendState vector.State `json:"backend_state"`
	Backend      string       `json:"backend"`
	Persistent   bool         `json:"persistent"`
	Strategy     string       `json:"strategy"`
	Dimension    int          `json:"dimension"`
}
