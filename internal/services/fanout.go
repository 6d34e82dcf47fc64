package services

import (
	"context"
	"errors"
	"sync"
)

// fanOut runs every query concurrently and waits for all of them.
// results[i] and errs[i] belong to queries[i].
func fanOut[T any](ctx context.Context, queries ...func(context.Context) ([]T, error)) (results [][]T, errs []error) {
	results = make([][]T, len(queries))
	errs = make([]error, len(queries))

	var wg sync.WaitGroup
	wg.Add(len(queries))
	for i, query := range queries {
		go func(i int, query func(context.Context) ([]T, error)) {
			defer wg.Done()
			results[i], errs[i] = query(ctx)
		}(i, query)
	}
	wg.Wait()
	return results, errs
}

// joinOutcome summarises a fan-out: failed counts the branches that errored
// and err joins their errors.
func joinOutcome(errs []error) (failed int, err error) {
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	return failed, errors.Join(errs...)
}
