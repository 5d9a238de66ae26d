// Package throttle implements the two shared limits on outbound fetch traffic.
//
//   - Limiter: a request-rate ceiling (permits per second), applied to every HTTP attempt
//   - Gate: a bound on concurrently executing fetch tasks
//
// Both are explicitly constructed values owned by a single ingest run. There is no
// package-level state, so independent runs (and tests) never share limits.
package throttle
