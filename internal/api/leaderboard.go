package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetLeaderboard fetches one page of the ranked leaderboard.
// Every returned entry carries a wallet; a page with an anonymous row is malformed.
func (c *Client) GetLeaderboard(ctx context.Context, opts LeaderboardOptions) ([]LeaderboardEntry, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	query.Set("offset", strconv.Itoa(opts.Offset))
	if opts.TimePeriod != "" {
		query.Set("timePeriod", opts.TimePeriod)
	}
	if opts.OrderBy != "" {
		query.Set("orderBy", opts.OrderBy)
	}
	if opts.Category != "" {
		query.Set("category", opts.Category)
	}

	var entries []LeaderboardEntry
	if err := c.get(ctx, "leaderboard", "/v1/leaderboard", query, &entries); err != nil {
		return nil, fmt.Errorf("get leaderboard offset %d: %w", opts.Offset, err)
	}

	for i, e := range entries {
		if e.Wallet() == "" {
			return nil, fmt.Errorf("get leaderboard offset %d: %w",
				opts.Offset, malformed("entry %d has no wallet", i))
		}
	}

	return entries, nil
}
