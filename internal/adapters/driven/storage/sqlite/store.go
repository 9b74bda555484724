package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Store is the SQLite-backed storage providing the document and
// cursor store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.quarry/data/quarry.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".quarry", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "quarry.db")

	// WAL mode: the sync adapters upsert concurrently while search reads.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// CursorStore returns a CursorStore interface backed by this store.
func (s *Store) CursorStore() driven.CursorStore {
	return &cursorStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, source_type, source_id, parent_id, title, content,
	content_hash, embedding, metadata, source_created_at, source_updated_at, indexed_at`

// Upsert stores a document, guarded by content hash: when the stored
// hash equals the incoming hash the UPDATE branch matches no row and
// the write is a no-op.
func (s *documentStore) Upsert(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_type, source_id, parent_id, title, content,
			content_hash, embedding, metadata, source_created_at, source_updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			source_created_at = excluded.source_created_at,
			source_updated_at = excluded.source_updated_at,
			indexed_at = excluded.indexed_at
		WHERE documents.content_hash <> excluded.content_hash
	`, doc.ID, string(doc.Source), doc.SourceID, doc.ParentID, doc.Title, doc.Content,
		doc.ContentHash, float32SliceToBytes(doc.Embedding), string(metadataJSON),
		nullTime(doc.SourceCreatedAt), nullTime(doc.SourceUpdatedAt), doc.IndexedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetContentHashes returns sourceID -> contentHash in one round-trip.
func (s *documentStore) GetContentHashes(
	ctx context.Context, source domain.SourceType, ids []string,
) (map[string]string, error) {
	hashes := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return hashes, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(source))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.store.db.QueryContext(ctx,
		`SELECT source_id, content_hash FROM documents
		 WHERE source_type = ? AND source_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		hashes[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hashes: %w", err)
	}
	return hashes, nil
}

// GetDocument retrieves a document by source identity.
func (s *documentStore) GetDocument(
	ctx context.Context, source domain.SourceType, sourceID string,
) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_type = ? AND source_id = ?`,
		string(source), sourceID)
	return scanDocument(row)
}

// CountBySource returns the number of indexed documents per source.
func (s *documentStore) CountBySource(ctx context.Context) (map[domain.SourceType]int64, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT source_type, COUNT(*) FROM documents GROUP BY source_type`)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SourceType]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[domain.SourceType(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

// DeleteSource removes every document for a source.
func (s *documentStore) DeleteSource(ctx context.Context, source domain.SourceType) error {
	if _, err := s.store.db.ExecContext(ctx,
		"DELETE FROM documents WHERE source_type = ?", string(source)); err != nil {
		return fmt.Errorf("deleting source documents: %w", err)
	}
	return nil
}

// SemanticSearch ranks embedded documents by cosine similarity. The
// source/channel filter is applied in SQL before ranking, so the
// candidate scan only touches rows that can actually appear in
// results.
func (s *documentStore) SemanticSearch(
	ctx context.Context, embedding []float32, k int, filter domain.SearchFilter,
) ([]driven.SemanticHit, error) {
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}

	clause, args := filterClause(filter)
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE embedding IS NOT NULL AND length(embedding) > 0`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embedded documents: %w", err)
	}
	defer rows.Close()

	var hits []driven.SemanticHit
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		sim, ok := cosineSimilarity(embedding, doc.Embedding)
		if !ok {
			continue
		}
		hits = append(hits, driven.SemanticHit{Document: *doc, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedded documents: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// KeywordSearch runs FTS5 ranked search over title+content.
func (s *documentStore) KeywordSearch(
	ctx context.Context, query string, k int, filter domain.SearchFilter,
) ([]driven.KeywordHit, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	clause, filterArgs := filterClause(filter)
	args := append([]any{match}, filterArgs...)
	args = append(args, k)

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+qualifiedDocumentColumns("d")+`, bm25(documents_fts) AS rank
		FROM documents_fts f
		JOIN documents d ON d.rowid = f.rowid
		WHERE documents_fts MATCH ?`+clause+`
		ORDER BY rank
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []driven.KeywordHit
	for rows.Next() {
		doc, rank, err := scanDocumentWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25() is smaller-is-better; negate so higher is better.
		hits = append(hits, driven.KeywordHit{Document: *doc, Rank: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// SubstringSearch is the LIKE fallback over content, title and a fixed
// set of metadata fields, ordered by recency.
func (s *documentStore) SubstringSearch(
	ctx context.Context, query string, k int, filter domain.SearchFilter,
) ([]driven.KeywordHit, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	pattern := "%" + escapeLike(query) + "%"
	clause, filterArgs := filterClause(filter)

	args := []any{pattern, pattern, pattern, pattern, pattern}
	args = append(args, filterArgs...)
	args = append(args, k)

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE (content LIKE ? ESCAPE '\'
			OR title LIKE ? ESCAPE '\'
			OR json_extract(metadata, '$.url') LIKE ? ESCAPE '\'
			OR json_extract(metadata, '$.channel') LIKE ? ESCAPE '\'
			OR json_extract(metadata, '$.assignee') LIKE ? ESCAPE '\')`+clause+`
		ORDER BY source_updated_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()

	var hits []driven.KeywordHit
	rank := float64(k)
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		// Recency order is the relevance order for the fallback.
		hits = append(hits, driven.KeywordHit{Document: *doc, Rank: rank})
		rank--
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating substring hits: %w", err)
	}
	return hits, nil
}

// ==================== Cursor Store ====================

type cursorStore struct {
	store *Store
}

var _ driven.CursorStore = (*cursorStore)(nil)

// Get retrieves a cursor row by key.
func (s *cursorStore) Get(ctx context.Context, key string) (*domain.SyncCursor, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT key, cursor_value, cursor_type, last_synced_at, items_synced, status
		FROM sync_cursors WHERE key = ?`, key)

	var c domain.SyncCursor
	var ctype, status string
	var lastSynced sql.NullTime
	if err := row.Scan(&c.Key, &c.Value, &ctype, &lastSynced, &c.ItemsSynced, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning cursor: %w", err)
	}
	c.Type = domain.CursorType(ctype)
	c.Status = domain.SyncStatus(status)
	if lastSynced.Valid {
		c.LastSyncedAt = lastSynced.Time
	}
	return &c, nil
}

// Set stores or updates a cursor row.
func (s *cursorStore) Set(ctx context.Context, cursor domain.SyncCursor) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (key, cursor_value, cursor_type, last_synced_at, items_synced, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			cursor_value = excluded.cursor_value,
			cursor_type = excluded.cursor_type,
			last_synced_at = excluded.last_synced_at,
			items_synced = excluded.items_synced,
			status = excluded.status
	`, cursor.Key, cursor.Value, string(cursor.Type),
		nullTime(cursor.LastSyncedAt), cursor.ItemsSynced, string(cursor.Status))
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// SetStatus updates only the status column, creating the row if needed.
func (s *cursorStore) SetStatus(
	ctx context.Context, source domain.SourceType, status domain.SyncStatus,
) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (key, status) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET status = excluded.status
	`, string(source), string(status))
	if err != nil {
		return fmt.Errorf("setting cursor status: %w", err)
	}
	return nil
}

// Delete removes a cursor row.
func (s *cursorStore) Delete(ctx context.Context, key string) error {
	if _, err := s.store.db.ExecContext(ctx,
		"DELETE FROM sync_cursors WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting cursor: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// filterClause builds the shared "AND ..." SQL fragment for the
// source filter and the three-state channel policy.
func filterClause(filter domain.SearchFilter) (string, []any) {
	var sb strings.Builder
	var args []any

	if len(filter.Sources) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Sources))
		sb.WriteString(" AND source_type IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, src := range filter.Sources {
			args = append(args, string(src))
		}
	}

	if filter.Channels.Configured {
		if len(filter.Channels.Channels) == 0 {
			// All channels deselected: exclude the messaging source.
			sb.WriteString(" AND source_type <> ?")
			args = append(args, string(domain.SourceMessages))
		} else {
			placeholders := strings.Repeat("?,", len(filter.Channels.Channels))
			sb.WriteString(" AND (source_type <> ? OR json_extract(metadata, '$.channel') IN (" +
				placeholders[:len(placeholders)-1] + "))")
			args = append(args, string(domain.SourceMessages))
			for _, ch := range filter.Channels.Channels {
				args = append(args, ch)
			}
		}
	}

	return sb.String(), args
}

// ftsQuery converts free text into an FTS5 MATCH expression: each term
// is double-quoted so user input cannot inject query operators.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func qualifiedDocumentColumns(alias string) string {
	cols := strings.Split(documentColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocumentInto(sc scanner, extra ...any) (*domain.Document, error) {
	var doc domain.Document
	var source, metadataJSON string
	var parentID sql.NullString
	var embedding []byte
	var createdAt, updatedAt sql.NullTime

	dest := []any{&doc.ID, &source, &doc.SourceID, &parentID, &doc.Title, &doc.Content,
		&doc.ContentHash, &embedding, &metadataJSON, &createdAt, &updatedAt, &doc.IndexedAt}
	dest = append(dest, extra...)

	if err := sc.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Source = domain.SourceType(source)
	if parentID.Valid {
		doc.ParentID = &parentID.String
	}
	doc.Embedding = bytesToFloat32Slice(embedding)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if createdAt.Valid {
		doc.SourceCreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.SourceUpdatedAt = updatedAt.Time
	}
	return &doc, nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	return scanDocumentInto(row)
}

func scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	return scanDocumentInto(rows)
}

func scanDocumentWithRank(rows *sql.Rows) (*domain.Document, float64, error) {
	var rank float64
	doc, err := scanDocumentInto(rows, &rank)
	if err != nil {
		return nil, 0, err
	}
	return doc, rank, nil
}

// float32SliceToBytes encodes an embedding as little-endian float32s.
// Nil and empty embeddings encode as NULL.
func float32SliceToBytes(vals []float32) []byte {
	if len(vals) == 0 {
		return nil
	}
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToFloat32Slice(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vals := make([]float32, len(buf)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vals
}

// cosineSimilarity returns the cosine similarity of two vectors,
// mapped from [-1, 1] to [0, 1]. ok is false on dimension mismatch or
// zero-norm input.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2, true
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
