package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
)

// GetClosedPositions fetches one page of a wallet's closed positions, best
// realized PnL first. Each position keeps its raw payload.
func (c *Client) GetClosedPositions(ctx context.Context, opts ClosedPositionsOptions) ([]APIClosedPosition, error) {
	query := url.Values{}
	query.Set("user", opts.User)
	query.Set("sortBy", "realizedpnl")
	query.Set("sortDirection", "DESC")
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	query.Set("offset", strconv.Itoa(opts.Offset))

	var raw []json.RawMessage
	if err := c.get(ctx, "closed_positions", "/closed-positions", query, &raw); err != nil {
		return nil, fmt.Errorf("get closed positions %s offset %d: %w", opts.User, opts.Offset, err)
	}

	positions := make([]APIClosedPosition, 0, len(raw))
	for i, item := range raw {
		var p APIClosedPosition
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("get closed positions %s offset %d: %w",
				opts.User, opts.Offset, malformed("position %d: %v", i, err))
		}
		if p.Key(opts.User) == "" {
			return nil, fmt.Errorf("get closed positions %s offset %d: %w",
				opts.User, opts.Offset, malformed("position %d has no identifier", i))
		}
		p.Raw = append([]byte(nil), item...)
		positions = append(positions, p)
	}

	return positions, nil
}
