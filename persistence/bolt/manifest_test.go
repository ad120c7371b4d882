package bolt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flarexio/docrag/vector"
)

func TestManifestStore(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	store, err := OpenManifest(dir)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	_, found, err := store.Load()
	assert.NoError(err)
	assert.False(found)

	m := vector.Manifest{
		SchemaVersion: vector.SchemaVersion,
		Backend:       "chromem",
		Collection:    "documents",
		Fingerprint:   "tfidf-abc",
		Dimension:     384,
	}

	assert.NoError(store.Save(m))
	assert.NoError(store.Close())

	store, err = OpenManifest(dir)
	if err != nil {
		assert.Fail(err.Error())
		return
	}
	defer store.Close()

	loaded, found, err := store.Load()
	assert.NoError(err)
	assert.True(found)
	assert.True(m.Compatible(loaded))
}

func TestManifestCorrupt(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	junk := bytes.Repeat([]byte{0xAB}, 16384)
	if err := os.WriteFile(filepath.Join(dir, Filename), junk, 0600); err != nil {
		assert.Fail(err.Error())
		return
	}

	_, err := OpenManifest(dir)
	assert.ErrorIs(err, vector.ErrManifestCorrupt)
}
