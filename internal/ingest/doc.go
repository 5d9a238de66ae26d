// Package ingest runs one ingest iteration: fetch the leaderboard, fetch
// closed positions for every ranked account, and persist both.
//
// The Orchestrator moves through
//
//	Idle -> FetchingLeaderboard -> FetchingPositions -> Persisting -> Completed | Failed
//
// A leaderboard failure, a snapshot write failure or cancellation fails the
// run. A failure scoped to one account is recorded in the run summary and
// the run continues.
package ingest
