package goGateway

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batch runs every request concurrently and returns results in request order. A failure
// is recorded in its slot and never cancels the others.
func (g *Gateway) Batch(ctx context.Context, reqs []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var eg errgroup.Group
	for i, r := range reqs {
		eg.Go(func() error {
			resp, err := g.Request(ctx, r.Endpoint, r.Options)
			results[i] = BatchResult{Response: resp, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}
