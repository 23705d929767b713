package pagination

import (
	"context"
	"errors"
	"fmt"
)

// Select pages through a section starting from its first page and returns the
// deduplicated winner of the absolute-offset and page-index strategies.
//
// A failed page fetch discards that strategy's progress. When every attempted strategy
// failed, or ctx was cancelled, the first page is returned together with the error.
func Select[T any](ctx context.Context, first []T, meta *Meta, fetch PageFunc[T], key KeyFunc[T]) (*Result[T], error) {
	seed := NewSet(key)
	seed.Add(first...)

	dbg := Debug{
		Strategy:      StrategyNone,
		FirstCount:    len(first),
		FetchedUnique: seed.Len(),
	}

	if meta == nil {
		dbg.TerminatedBy = ReasonMissingPagination
		return &Result[T]{Items: seed.Items(), Debug: dbg}, nil
	}

	limit := meta.Limit
	if limit < 1 {
		limit = max(len(first), 1)
	}
	base := max(meta.Offset, 0)
	total := max(meta.Total, 0)

	dbg.Limit = limit
	dbg.BaseOffset = base
	dbg.Total = total

	if !bool(meta.HasMore) || seed.Len() >= total {
		dbg.TerminatedBy = ReasonSinglePage
		return &Result[T]{Items: seed.Items(), Debug: dbg}, nil
	}

	var errs []error

	abs, absAttempt, err := run(ctx, StrategyAbsolute, seed, base, limit, total,
		offsetFunc(StrategyAbsolute, base, limit), fetch)
	dbg.Attempts = append(dbg.Attempts, absAttempt)
	if err != nil {
		errs = append(errs, err)
	}

	winner, winnerAttempt := abs, absAttempt

	// A server that reads offset as a page number never grows past the first page
	// under absolute offsets.
	grew := abs != nil && abs.Len() > seed.Len()
	if !grew && total > seed.Len() {
		page, pageAttempt, err := run(ctx, StrategyPageIndex, seed, base, limit, total,
			offsetFunc(StrategyPageIndex, base, limit), fetch)
		dbg.Attempts = append(dbg.Attempts, pageAttempt)
		if err != nil {
			errs = append(errs, err)
		} else if pick(winner, page) == StrategyPageIndex {
			winner, winnerAttempt = page, pageAttempt
		}
	}

	if err := ctx.Err(); err != nil {
		dbg.TerminatedBy = ReasonCancelled
		return &Result[T]{Items: seed.Items(), Debug: dbg}, err
	}

	if winner == nil {
		dbg.TerminatedBy = ReasonFetchFailed
		return &Result[T]{Items: seed.Items(), Debug: dbg}, errors.Join(errs...)
	}

	dbg.Strategy = winnerAttempt.Strategy
	dbg.TerminatedBy = winnerAttempt.TerminatedBy
	dbg.PagesFetched = winnerAttempt.PagesFetched
	dbg.DuplicatePages = winnerAttempt.DuplicatePages
	dbg.SampledOffsets = winnerAttempt.SampledOffsets
	dbg.FetchedUnique = winner.Len()

	return &Result[T]{Items: winner.Items(), Debug: dbg}, nil
}

// offsetFunc returns the offset of the i-th page after the first under strategy.
func offsetFunc(strategy Strategy, base, limit int) func(i int) int {
	if strategy == StrategyPageIndex {
		return func(i int) int { return base + i }
	}
	return func(i int) int { return base + limit*i }
}

// FetchedOffsets returns the offsets the winning strategy fetched after the first
// page, in request order. It is empty when no strategy won.
func (d Debug) FetchedOffsets() []int {
	if d.Strategy != StrategyAbsolute && d.Strategy != StrategyPageIndex {
		return nil
	}
	offsetOf := offsetFunc(d.Strategy, d.BaseOffset, d.Limit)
	out := make([]int, d.PagesFetched)
	for i := range out {
		out[i] = offsetOf(i + 1)
	}
	return out
}

// pick returns the strategy with more unique items; ties go to the absolute strategy.
// A nil set stands for a failed attempt.
func pick[T any](abs, page *Set[T]) Strategy {
	switch {
	case abs == nil && page == nil:
		return StrategyNone
	case abs == nil:
		return StrategyPageIndex
	case page == nil:
		return StrategyAbsolute
	case page.Len() > abs.Len():
		return StrategyPageIndex
	default:
		return StrategyAbsolute
	}
}

func run[T any](
	ctx context.Context,
	strategy Strategy,
	seed *Set[T],
	base, limit, total int,
	offsetOf func(i int) int,
	fetch PageFunc[T],
) (*Set[T], Attempt, error) {
	set := seed.clone()
	attempt := Attempt{Strategy: strategy}
	requested := map[int]struct{}{base: {}}
	stalls := 0

	for i := 1; ; i++ {
		if attempt.PagesFetched >= MaxPages {
			attempt.TerminatedBy = ReasonMaxPages
			break
		}
		if set.Len() >= total {
			attempt.TerminatedBy = ReasonReachedTotal
			break
		}
		if err := ctx.Err(); err != nil {
			attempt.TerminatedBy = ReasonCancelled
			attempt.Error = err.Error()
			return nil, attempt, fmt.Errorf("%s: %w", strategy, err)
		}

		offset := offsetOf(i)
		if _, seen := requested[offset]; seen {
			attempt.TerminatedBy = ReasonRepeatedOffset
			break
		}
		requested[offset] = struct{}{}

		page, err := fetch(ctx, offset, limit)
		if err != nil {
			attempt.TerminatedBy = ReasonFetchFailed
			attempt.Error = err.Error()
			return nil, attempt, fmt.Errorf("%s page at offset %d: %w", strategy, offset, err)
		}

		attempt.PagesFetched++
		if len(attempt.SampledOffsets) < maxSampledOffsets {
			attempt.SampledOffsets = append(attempt.SampledOffsets, offset)
		}

		if len(page) == 0 {
			attempt.TerminatedBy = ReasonEmptyPage
			break
		}

		if set.Add(page...) == 0 {
			attempt.DuplicatePages++
			stalls++
		} else {
			stalls = 0
		}

		if len(page) < limit {
			attempt.TerminatedBy = ReasonShortPage
			break
		}
		if set.Len() >= total {
			attempt.TerminatedBy = ReasonReachedTotal
			break
		}
		if stalls >= 2 {
			attempt.TerminatedBy = ReasonStalled
			break
		}
	}

	attempt.Unique = set.Len()
	return set, attempt, nil
}
