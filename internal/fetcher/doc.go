// Package fetcher turns the paginated data API endpoints into lazy page
// sequences.
//
// Leaderboard walks the ranked leaderboard sequentially and assigns ranks
// by merged page order. Positions walks one account's closed positions.
// Both check the context between pages and never prefetch.
package fetcher
