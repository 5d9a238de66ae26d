// Package model defines shared data types used across the ingester.
//
// Conventions:
//   - Timestamps: time.Time in UTC; snapshot times are truncated to microseconds
//     so they round-trip through PostgreSQL and DuckDB unchanged
//   - Money, sizes and prices: decimal.Decimal, carried through without rounding
//   - IDs: strings as reported by the platform, uuid.UUID for ingest runs
package model
