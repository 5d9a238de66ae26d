package fetcher

import (
	"context"
	"iter"
)

// pageFunc fetches at most limit items starting at offset.
type pageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// offsetPages pages through fetch until the source returns a short page or
// max items have been requested. A max of 0 means unlimited. Empty pages are
// not yielded.
func offsetPages[T any](ctx context.Context, pageSize, max int, fetch pageFunc[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			limit := pageSize
			if max > 0 {
				limit = min(limit, max-offset)
				if limit <= 0 {
					return
				}
			}

			page, err := fetch(ctx, limit, offset)
			if err != nil {
				yield(nil, err)
				return
			}

			if len(page) > 0 && !yield(page, nil) {
				return
			}
			if len(page) < limit {
				return
			}
			offset += len(page)
		}
	}
}
