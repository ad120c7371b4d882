package sqlite

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/flarexio/docrag/document"
	"github.com/flarexio/docrag/vector"
)

const Filename = "docrag.sqlite"

func NewOpener() vector.Opener {
	return &opener{}
}

type opener struct{}

func (*opener) Name() string { return "sqlite" }

func (*opener) OpenPersistent(ctx context.Context, cfg vector.Config) (vector.Backend, error) {
	return Open(ctx, filepath.Join(cfg.Path, Filename), cfg.Collection)
}

// Purge removes the database together with its WAL and shared memory files.
func (*opener) Purge(cfg vector.Config) error {
	path := filepath.Join(cfg.Path, Filename)
	for _, name := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return nil
}

func (*opener) OpenEphemeral(ctx context.Context, cfg vector.Config) (vector.Backend, error) {
	return Open(ctx, ":memory:", cfg.Collection)
}

// Backend keeps records in one SQLite table and answers queries by a full
// scan, which suits collections of a few hundred thousand chunks.
type Backend struct {
	db    *sql.DB
	table string
}

func Open(ctx context.Context, path string, collection string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	b := &Backend{
		db:    db,
		table: quoteIdent("records_" + collection),
	}

	if err := b.init(ctx, path != ":memory:"); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

func quoteIdent(name string) string {
	out := []byte{'"'}
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}

	return string(append(out, '"'))
}

func (b *Backend) init(ctx context.Context, persistent bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	if persistent {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, p := range pragmas {
		if _, err := b.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS ` + b.table + ` (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL
	)`

	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	return nil
}

// Upsert writes the batch in one transaction: all records or none.
func (b *Backend) Upsert(ctx context.Context, records []vector.Record) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO `+b.table+
		` (id, document, chunk_type, page_number, content, metadata, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		var metadata []byte
		if len(r.Chunk.Metadata) > 0 {
			metadata, err = json.Marshal(r.Chunk.Metadata)
			if err != nil {
				return 0, err
			}
		}

		_, err := stmt.ExecContext(ctx,
			r.ID,
			r.DocumentName,
			string(r.Chunk.ChunkType),
			r.Chunk.PageNumber,
			r.Chunk.Content,
			metadata,
			encodeFloat32Slice(normalize(r.Vector)),
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(records), nil
}

func (b *Backend) Query(ctx context.Context, v []float32, k int) ([]vector.SearchHit, error) {
	if k <= 0 {
		return []vector.SearchHit{}, nil
	}

	query := normalize(v)

	rows, err := b.db.QueryContext(ctx, `SELECT id, document, chunk_type, page_number, content, metadata, embedding FROM `+b.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	h := &hitHeap{}
	for rows.Next() {
		var (
			r        vector.Record
			typ      string
			metadata sql.NullString
			embBytes []byte
		)

		err := rows.Scan(&r.ID, &r.DocumentName, &typ, &r.Chunk.PageNumber, &r.Chunk.Content, &metadata, &embBytes)
		if err != nil {
			return nil, err
		}

		r.Chunk.ChunkType = document.ChunkType(typ)
		r.Vector = decodeFloat32Slice(embBytes)

		if metadata.Valid && metadata.String != "" {
			json.Unmarshal([]byte(metadata.String), &r.Chunk.Metadata)
		}

		hit := vector.SearchHit{
			Record: r,
			Score:  dot(query, r.Vector),
		}

		if h.Len() < k {
			heap.Push(h, hit)
		} else if vector.Before(hit, (*h)[0]) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]vector.SearchHit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(h).(vector.SearchHit)
	}

	return hits, nil
}

func (b *Backend) Count(ctx context.Context) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+b.table).Scan(&count)
	return count, err
}

func (b *Backend) DeleteAll(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM `+b.table)
	return err
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// hitHeap holds the current top k with the lowest ranked hit at the root.
type hitHeap []vector.SearchHit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return vector.Before(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) {
	*h = append(*h, x.(vector.SearchHit))
}

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func normalize(v []float32) []float32 {
	norm := vector.Norm(v)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}

	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

func encodeFloat32Slice(f []float32) []byte {
	buf := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32Slice(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
