package bolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flarexio/docrag/vector"
)

const Filename = vector.ManifestFile

var (
	bucketManifest = []byte("manifest")
	keyCurrent     = []byte("current")
)

type ManifestStore struct {
	db *bbolt.DB
}

// OpenManifest is a vector.ManifestOpener backed by a bbolt file inside dir.
func OpenManifest(dir string) (vector.ManifestStore, error) {
	return NewManifestStore(filepath.Join(dir, Filename))
}

func NewManifestStore(path string) (*ManifestStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, classify(err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketManifest)
		return err
	})
	if err != nil {
		db.Close()
		return nil, classify(err)
	}

	return &ManifestStore{db: db}, nil
}

func classify(err error) error {
	if errors.Is(err, bbolt.ErrInvalid) ||
		errors.Is(err, bbolt.ErrVersionMismatch) ||
		errors.Is(err, bbolt.ErrChecksum) {
		return fmt.Errorf("%w: %w", vector.ErrManifestCorrupt, err)
	}

	return err
}

func (s *ManifestStore) Load() (vector.Manifest, bool, error) {
	var (
		m     vector.Manifest
		found bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketManifest)
		data := b.Get(keyCurrent)
		if data == nil {
			return nil
		}

		found = true
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: %w", vector.ErrManifestCorrupt, err)
		}

		return nil
	})

	return m, found, err
}

func (s *ManifestStore) Save(m vector.Manifest) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketManifest)
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}

		return b.Put(keyCurrent, data)
	})
}

func (s *ManifestStore) Close() error {
	return s.db.Close()
}
