package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
)

// DefaultSizeThreshold drops dust holdings from GET /positions.
const DefaultSizeThreshold = ".1"

// GetPositions fetches one page of a wallet's active positions, largest
// current value first.
func (c *Client) GetPositions(ctx context.Context, opts PositionsOptions) ([]APIPosition, error) {
	threshold := opts.SizeThreshold
	if threshold == "" {
		threshold = DefaultSizeThreshold
	}

	query := url.Values{}
	query.Set("user", opts.User)
	query.Set("sortBy", "CURRENT")
	query.Set("sortDirection", "DESC")
	query.Set("sizeThreshold", threshold)
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	query.Set("offset", strconv.Itoa(opts.Offset))

	var raw []json.RawMessage
	if err := c.get(ctx, "positions", "/positions", query, &raw); err != nil {
		return nil, fmt.Errorf("get positions %s offset %d: %w", opts.User, opts.Offset, err)
	}

	positions := make([]APIPosition, 0, len(raw))
	for i, item := range raw {
		var p APIPosition
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("get positions %s offset %d: %w",
				opts.User, opts.Offset, malformed("position %d: %v", i, err))
		}
		if p.Asset == "" {
			return nil, fmt.Errorf("get positions %s offset %d: %w",
				opts.User, opts.Offset, malformed("position %d has no asset", i))
		}
		p.Raw = append([]byte(nil), item...)
		positions = append(positions, p)
	}

	return positions, nil
}
