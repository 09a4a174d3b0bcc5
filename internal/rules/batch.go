package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/opensource-finance/creditguard/internal/domain"
)

// EvaluateBatch evaluates txs and returns results in input order.
//
// Transactions are grouped by user and each group runs sequentially in
// timestamp order (stable for equal instants), so stateful rules see a
// user's history chronologically. Groups run in parallel on at most
// MaxWorkers goroutines.
func (e *Engine) EvaluateBatch(ctx context.Context, txs []domain.Transaction) ([]*domain.FraudResult, error) {
	results := make([]*domain.FraudResult, len(txs))
	if len(txs) == 0 {
		return results, nil
	}

	var order []string
	groups := make(map[string][]int)
	for i, tx := range txs {
		if _, ok := groups[tx.UserID]; !ok {
			order = append(order, tx.UserID)
		}
		groups[tx.UserID] = append(groups[tx.UserID], i)
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for _, userID := range order {
		idx := groups[userID]
		sort.SliceStable(idx, func(a, b int) bool {
			return txs[idx[a]].Timestamp.Before(txs[idx[b]].Timestamp)
		})

		wg.Add(1)
		go func(idx []int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			for _, i := range idx {
				result, err := e.Evaluate(ctx, txs[i])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				results[i] = result
			}
		}(idx)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
