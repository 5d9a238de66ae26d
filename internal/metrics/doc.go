// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Data API request outcomes, retries and latency
//   - Rate limiter wait time and concurrency gate occupancy
//   - Upserted rows and failed batches per table
//   - Run outcomes, durations and state transitions
package metrics
