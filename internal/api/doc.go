// Package api provides the Polymarket data API client.
//
// REST endpoints (https://data-api.polymarket.com):
//   - GET /v1/leaderboard: ranked account summaries, offset paginated
//   - GET /closed-positions: resolved positions for one wallet, offset paginated
//
// Every attempt passes through the configured rate limiter. Failures are classified
// as transient (timeouts, connection errors, 429, 5xx), which are retried with
// exponential backoff and jitter, or permanent (other 4xx, malformed bodies),
// which are returned immediately. Use IsTransient and IsPermanent to inspect them.
package api
