package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/flarexio/docrag/document"
)

var (
	ErrNotReady        = errors.New("vector store not ready")
	ErrClosed          = errors.New("vector store closed")
	ErrPartialWrite    = errors.New("partial write")
	ErrManifestCorrupt = errors.New("manifest unreadable")
)

const (
	DefaultCollection   = "documents"
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 500 * time.Millisecond
	BatchSize           = 100
)

type Config struct {
	Backend      string        `yaml:"backend"`
	Persistent   bool          `yaml:"persistent"`
	Path         string        `yaml:"path"`
	Collection   string        `yaml:"collection"`
	Compress     bool          `yaml:"compress"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state := StateUninitialized; state <= StateClosed; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("unknown state: %s", text)
}

// Record is one stored chunk with its vector.
type Record struct {
	ID           string         `json:"id"`
	DocumentName string         `json:"document_name"`
	Chunk        document.Chunk `json:"chunk"`
	Vector       []float32      `json:"-"`
}

// RecordID derives the deterministic id of the i-th chunk of a document.
func RecordID(documentName string, chunkType document.ChunkType, page int, i int) string {
	return documentName + "_" + string(chunkType) + "_" + strconv.Itoa(page) + "_" + strconv.Itoa(i)
}

type SearchHit struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

type AddResult struct {
	Accepted   int                        `json:"accepted"`
	Rejected   int                        `json:"rejected"`
	TypeCounts map[document.ChunkType]int `json:"type_counts"`
}

type Stats struct {
	TotalRecords int    `json:"total_records"`
	State        State  `json:"backend_state"`
	Backend      string `json:"backend"`
	Persistent   bool   `json:"persistent"`
}

// Backend is the raw record store behind a Store. Query returns the
// nearest records by cosine similarity; Upsert reports how many records of
// the batch were committed, in order, even when it fails.
type Backend interface {
	Upsert(ctx context.Context, records []Record) (int, error)
	Query(ctx context.Context, vector []float32, k int) ([]SearchHit, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
	Close() error
}

// Opener creates backends. Purge removes only the entries OpenPersistent
// creates under cfg.Path, never the directory itself.
type Opener interface {
	Name() string
	OpenPersistent(ctx context.Context, cfg Config) (Backend, error)
	OpenEphemeral(ctx context.Context, cfg Config) (Backend, error)
	Purge(cfg Config) error
}

// ManifestFile is the manifest's name inside the persistent location.
const ManifestFile = "manifest.db"

// Manifest describes the vector space a persistent location was built for.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	Backend       string    `json:"backend"`
	Collection    string    `json:"collection"`
	Fingerprint   string    `json:"fingerprint"`
	Dimension     int       `json:"dimension"`
	CreatedAt     time.Time `json:"created_at"`
}

const SchemaVersion = 1

func (m Manifest) Compatible(other Manifest) bool {
	return m.SchemaVersion == other.SchemaVersion &&
		m.Backend == other.Backend &&
		m.Collection == other.Collection &&
		m.Fingerprint == other.Fingerprint &&
		m.Dimension == other.Dimension
}

type ManifestStore interface {
	// Load reports false when no manifest has been written yet.
	Load() (Manifest, bool, error)
	Save(m Manifest) error
	Close() error
}

// ManifestOpener opens the manifest kept in a persistent location.
// Unreadable manifests are reported as ErrManifestCorrupt.
type ManifestOpener func(dir string) (ManifestStore, error)

// Encoder is the embedding side of the store.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Fingerprint() string
}

func Norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	return math.Sqrt(sum)
}

// ClampScore maps a similarity onto [0, 1].
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func partialWrite(committed, total int, err error) error {
	return fmt.Errorf("%w: %d of %d records committed: %w", ErrPartialWrite, committed, total, err)
}
