// Package store persists leaderboard snapshots, closed positions, markets
// and ingest run metadata.
//
// Every upsert call is one transaction: a batch is validated in full before
// anything is written, and either all of its rows commit or none do. Upserts
// only rewrite a row when a column value actually changes, so replaying the
// same batch leaves the store untouched.
//
// Two backends implement Store:
//   - Postgres: pgxpool, one pgx.Batch per transaction
//   - DuckDB: embedded database/sql backend with a single writer
package store
