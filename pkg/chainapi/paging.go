package chainapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// listPaged walks Blockfrost pages 1..N until an empty page. limit > 0 stops once that
// many items are collected. An error after the first page returns the items gathered so
// far together with the error.
func listPaged[T any](ctx context.Context, c *HTTPClient, path string, query url.Values, limit int) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("count", strconv.Itoa(PageSize))

		var items []T
		err := c.doJSON(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &items)
		if errors.Is(err, ErrNotFound) {
			return all, nil
		}
		if err != nil {
			return all, fmt.Errorf("page %d of %s: %w", page, path, err)
		}
		if len(items) == 0 {
			return all, nil
		}

		all = append(all, items...)
		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
	}
}
