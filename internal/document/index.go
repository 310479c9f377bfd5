package document

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Default index parameters.
const (
	DefaultChunkSize = 1200
	DefaultTopK      = 3
	maxDocumentBytes = 32 << 20
)

// IndexOptions tunes chunking and retrieval.
type IndexOptions struct {
	ChunkSize int // bytes per chunk
	TopK      int // passages returned per query
}

// Index is a Factory that stores document chunks in an in-memory SQLite
// FTS5 table and answers queries by BM25 rank. One Index can serve many
// runs; each built tool owns its own rows.
type Index struct {
	db        *sql.DB
	chunkSize int
	topK      int
}

// NewIndex opens a private in-memory database for the index.
func NewIndex(ctx context.Context, opts IndexOptions) (*Index, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	connStr := fmt.Sprintf("file:grantwriter-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	// A single connection keeps the in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks USING fts5(
			doc_key UNINDEXED,
			ord UNINDEXED,
			body,
			tokenize = 'porter unicode61'
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index table: %w", err)
	}

	return &Index{db: db, chunkSize: opts.ChunkSize, topK: opts.TopK}, nil
}

// Build reads the document, chunks it and indexes the chunks.
func (ix *Index) Build(ctx context.Context, h Handle) (SearchTool, error) {
	rc, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", h.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", h.Name(), err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", h.Name(), maxDocumentBytes)
	}

	text, err := extractText(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.Name(), err)
	}
	chunks := chunkText(text, ix.chunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", h.Name(), ErrEmptyDocument)
	}

	key := uuid.NewString()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks (doc_key, ord, body) VALUES (?, ?, ?)`, key, i, c); err != nil {
			return nil, fmt.Errorf("failed to index chunk %d of %s: %w", i, h.Name(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit index of %s: %w", h.Name(), err)
	}

	return &indexTool{
		ix:      ix,
		key:     key,
		name:    toolName(h.Name(), h.ID()),
		docName: h.Name(),
	}, nil
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

type indexTool struct {
	ix      *Index
	key     string
	name    string
	docName string
}

func (t *indexTool) Name() string { return t.name }

func (t *indexTool) Description() string {
	return fmt.Sprintf("Search the document %q and return the passages most relevant to a free-text query.", t.docName)
}

// Query returns the best matching passages separated by rules. A query
// with no match yields an explanatory sentence rather than an error.
func (t *indexTool) Query(ctx context.Context, text string) (string, error) {
	expr := matchExpression(text)
	if expr == "" {
		return fmt.Sprintf("No searchable terms in query for %s.", t.docName), nil
	}

	rows, err := t.ix.db.QueryContext(ctx, `
		SELECT body FROM chunks
		WHERE chunks MATCH ? AND doc_key = ?
		ORDER BY rank
		LIMIT ?`, expr, t.key, t.ix.topK)
	if err != nil {
		return "", fmt.Errorf("searching %s: %w", t.docName, err)
	}
	defer rows.Close()

	var passages []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return "", fmt.Errorf("reading match from %s: %w", t.docName, err)
		}
		passages = append(passages, body)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("searching %s: %w", t.docName, err)
	}

	if len(passages) == 0 {
		return fmt.Sprintf("No passage in %s matched the query.", t.docName), nil
	}
	return strings.Join(passages, "\n\n---\n\n"), nil
}

// Close removes the tool's chunks from the index.
func (t *indexTool) Close() error {
	_, err := t.ix.db.Exec(`DELETE FROM chunks WHERE doc_key = ?`, t.key)
	return err
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:3])
}
