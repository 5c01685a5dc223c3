// Package notestore persists finished notes in SQLite so they outlive the
// in-memory job registry.
//
// The database lives at <data_dir>/notes.db, runs in WAL mode, and retries
// statements that hit SQLITE_BUSY with a short exponential backoff. The schema
// is embedded and versioned; a version mismatch refuses to open rather than
// migrating.
package notestore
