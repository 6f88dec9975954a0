package coordinator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jmgilman/go/errors"

	"github.com/krisalay/menu-cache/types"
)

/*
JSONFetcher returns a Fetcher that GETs url and decodes the JSON body into V.

Transport errors and non-2xx responses are network failures. Point the
client's Transport at an edge.Worker to route the request through the
persistent edge cache.
*/
func JSONFetcher[V any](client *http.Client, url string) types.Fetcher[V] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (V, error) {
		var out V

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return out, errors.Wrap(err, errors.CodeInvalidInput, "failed to build request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return out, errors.Wrap(err, errors.CodeNetwork, "request failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return out, errors.WithContext(
				errors.Newf(errors.CodeNetwork, "unexpected status %d", resp.StatusCode),
				"url", url,
			)
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return out, errors.Wrap(err, errors.CodeInternal, "failed to decode response")
		}
		return out, nil
	}
}
