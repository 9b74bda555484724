// Package sqlite implements the DocumentStore and CursorStore ports on
// a single SQLite database. Keyword search is served by a
// trigger-maintained FTS5 index; semantic candidates are ranked by
// cosine similarity over the stored embedding blobs. Upserts are
// content-hash-guarded so re-indexing unchanged content never mutates
// a row, which is what makes concurrent sync writers safe without an
// explicit transaction API.
package sqlite
