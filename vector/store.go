package vector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/flarexio/docrag/document"
)

// Store owns the backend handle and the init state machine:
// Uninitialized -> Initializing -> Ready | Degraded -> Closed.
type Store struct {
	cfg       Config
	encoder   Encoder
	opener    Opener
	manifests ManifestOpener
	log       *zap.Logger

	initMu sync.Mutex

	mu         sync.RWMutex
	state      State
	backend    Backend
	persistent bool
}

func NewStore(cfg Config, encoder Encoder, opener Opener, manifests ManifestOpener) *Store {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	log := zap.L().With(
		zap.String("component", "vector"),
		zap.String("backend", opener.Name()),
		zap.String("collection", cfg.Collection),
	)

	return &Store{
		cfg:       cfg,
		encoder:   encoder,
		opener:    opener,
		manifests: manifests,
		log:       log,
		state:     StateUninitialized,
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Initialize opens the backend. Persistent failures are retried with
// exponential backoff and finally replaced by an ephemeral backend, in which
// case the store is Degraded and no error is returned.
func (s *Store) Initialize(ctx context.Context) (State, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateReady, StateDegraded:
		state := s.state
		s.mu.Unlock()
		return state, nil

	case StateClosed:
		s.mu.Unlock()
		return StateClosed, ErrClosed
	}

	s.state = StateInitializing
	s.mu.Unlock()

	log := s.log.With(
		zap.String("action", "initialize"),
	)

	if !s.cfg.Persistent {
		backend, err := s.opener.OpenEphemeral(ctx, s.cfg)
		if err != nil {
			s.setState(StateUninitialized, nil, false)
			return StateUninitialized, err
		}

		s.setState(StateReady, backend, false)
		log.Info("ephemeral store ready")
		return StateReady, nil
	}

	attempt := 0
	backend, err := backoff.RetryNotifyWithData(
		func() (Backend, error) {
			attempt++
			return s.openPersistent(ctx)
		},
		s.retryPolicy(ctx),
		func(err error, next time.Duration) {
			log.Warn("persistent store unavailable",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		},
	)
	if err == nil {
		s.setState(StateReady, backend, true)
		log.Info("persistent store ready",
			zap.String("path", s.cfg.Path),
			zap.Int("attempt", attempt),
		)
		return StateReady, nil
	}

	lastErr := err

	backend, err = s.opener.OpenEphemeral(ctx, s.cfg)
	if err != nil {
		s.setState(StateUninitialized, nil, false)
		return StateUninitialized, errors.Join(lastErr, err)
	}

	s.setState(StateDegraded, backend, false)
	log.Warn("falling back to ephemeral store, data will not survive restart",
		zap.Error(lastErr),
	)

	return StateDegraded, nil
}

func (s *Store) setState(state State, backend Backend, persistent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// closed while initializing
	if s.state == StateClosed {
		if backend != nil {
			backend.Close()
		}
		return
	}

	s.state = state
	s.backend = backend
	s.persistent = persistent
}

// retryPolicy doubles RetryBackoff after every failed attempt, without
// jitter, for at most MaxRetries attempts.
func (s *Store) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.cfg.RetryBackoff << (s.cfg.MaxRetries - 1)
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries-1)), ctx)
}

// openPersistent checks the manifest of the configured location. A missing,
// unreadable or incompatible manifest purges the location before the
// backend is opened, so records of another vector space never resurface.
func (s *Store) openPersistent(ctx context.Context) (Backend, error) {
	if err := os.MkdirAll(s.cfg.Path, 0o755); err != nil {
		return nil, err
	}

	expected := Manifest{
		SchemaVersion: SchemaVersion,
		Backend:       s.opener.Name(),
		Collection:    s.cfg.Collection,
		Fingerprint:   s.encoder.Fingerprint(),
		Dimension:     s.encoder.Dimension(),
		CreatedAt:     time.Now(),
	}

	manifests, err := s.manifests(s.cfg.Path)
	if err != nil && !errors.Is(err, ErrManifestCorrupt) {
		return nil, err
	}

	compatible := false
	if err == nil {
		current, found, err := manifests.Load()
		switch {
		case errors.Is(err, ErrManifestCorrupt):
		case err != nil:
			manifests.Close()
			return nil, err
		case found:
			compatible = expected.Compatible(current)
		}

		manifests.Close()
	}

	if !compatible {
		s.log.Warn("purging persistent location",
			zap.String("path", s.cfg.Path),
			zap.String("fingerprint", expected.Fingerprint),
		)

		if err := s.opener.Purge(s.cfg); err != nil {
			return nil, err
		}

		err := os.Remove(filepath.Join(s.cfg.Path, ManifestFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	backend, err := s.opener.OpenPersistent(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	if compatible {
		return backend, nil
	}

	manifests, err = s.manifests(s.cfg.Path)
	if err != nil {
		backend.Close()
		return nil, err
	}
	defer manifests.Close()

	if err := manifests.Save(expected); err != nil {
		backend.Close()
		return nil, err
	}

	return backend, nil
}

func (s *Store) ready() error {
	switch s.state {
	case StateReady, StateDegraded:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// Add encodes all chunks in one call and upserts them in batches. An
// encoding failure adds nothing; a backend failure reports what was
// committed together with an error wrapping ErrPartialWrite.
func (s *Store) Add(ctx context.Context, documentName string, chunks []document.Chunk) (AddResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := AddResult{
		TypeCounts: make(map[document.ChunkType]int),
	}

	if err := s.ready(); err != nil {
		return result, err
	}

	valid := make([]int, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			result.Rejected++
			continue
		}

		valid = append(valid, i)
		texts = append(texts, chunk.Content)
	}

	if len(texts) == 0 {
		return result, nil
	}

	vectors, err := s.encoder.Encode(ctx, texts)
	if err != nil {
		return AddResult{TypeCounts: result.TypeCounts}, err
	}

	records := make([]Record, 0, len(vectors))
	for j, v := range vectors {
		if Norm(v) == 0 {
			result.Rejected++
			continue
		}

		i := valid[j]
		chunk := chunks[i]
		records = append(records, Record{
			ID:           RecordID(documentName, chunk.ChunkType, chunk.PageNumber, i),
			DocumentName: documentName,
			Chunk:        chunk,
			Vector:       v,
		})
	}

	for start := 0; start < len(records); start += BatchSize {
		end := min(start+BatchSize, len(records))

		n, err := s.backend.Upsert(ctx, records[start:end])
		for _, r := range records[start : start+n] {
			result.TypeCounts[r.Chunk.ChunkType]++
		}
		result.Accepted += n

		if err != nil {
			return result, partialWrite(result.Accepted, len(records), err)
		}
	}

	return result, nil
}

// Search returns at most k hits by descending score, ties ordered by page
// number then id. An empty store or a zero query vector yields no hits.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}

	if k <= 0 || Norm(vector) == 0 {
		return []SearchHit{}, nil
	}

	count, err := s.backend.Count(ctx)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return []SearchHit{}, nil
	}

	// over-fetch, then widen until every record tied with the k-th score
	// is present, so the tie rule decides the cut
	n := min(2*k, count)

	var hits []SearchHit
	for {
		hits, err = s.backend.Query(ctx, vector, n)
		if err != nil {
			return nil, err
		}

		for i := range hits {
			hits[i].Score = ClampScore(hits[i].Score)
		}

		SortHits(hits)

		if n >= count || len(hits) < n || len(hits) <= k {
			break
		}

		if hits[len(hits)-1].Score < hits[k-1].Score {
			break
		}

		n = min(2*n, count)
	}

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}

// Before reports whether a ranks ahead of b: higher score, then lower page
// number, then lower id.
func Before(a, b SearchHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}

	if a.Record.Chunk.PageNumber != b.Record.Chunk.PageNumber {
		return a.Record.Chunk.PageNumber < b.Record.Chunk.PageNumber
	}

	return a.Record.ID < b.Record.ID
}

func SortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return Before(hits[i], hits[j])
	})
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		State:      s.state,
		Backend:    s.opener.Name(),
		Persistent: s.persistent,
	}

	if err := s.ready(); err != nil {
		return stats, err
	}

	count, err := s.backend.Count(ctx)
	if err != nil {
		return stats, err
	}

	stats.TotalRecords = count
	return stats, nil
}

// Reset removes every record. It excludes all concurrent Add and Search.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	if err := s.backend.DeleteAll(ctx); err != nil {
		return err
	}

	s.log.Info("store reset", zap.String("action", "reset"))
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	s.state = StateClosed

	if s.backend == nil {
		return nil
	}

	backend := s.backend
	s.backend = nil
	return backend.Close()
}
