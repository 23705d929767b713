package pagination

import (
	"context"

	"posclient/internal/domain/erp"
)

// MaxPages caps the pages a single strategy attempt may fetch.
const MaxPages = 200

const maxSampledOffsets = 20

// Meta is the pagination block attached to a paged section response.
type Meta struct {
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
	HasMore erp.Flag `json:"has_more"`
}

// Strategy names an offset formula.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyAbsolute  Strategy = "absolute_offset"
	StrategyPageIndex Strategy = "page_index"
)

// Reason tells why fetching stopped.
type Reason string

const (
	ReasonMissingPagination Reason = "missing_pagination"
	ReasonSinglePage        Reason = "single_page"
	ReasonMaxPages          Reason = "max_pages"
	ReasonReachedTotal      Reason = "reached_total"
	ReasonEmptyPage         Reason = "empty_page"
	ReasonShortPage         Reason = "short_page"
	ReasonRepeatedOffset    Reason = "repeated_offset"
	ReasonStalled           Reason = "stalled"
	ReasonFetchFailed       Reason = "fetch_failed"
	ReasonCancelled         Reason = "cancelled"
)

// PageFunc fetches one page at the given offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// KeyFunc returns the stable identity of an item used for deduplication.
type KeyFunc[T any] func(T) string

// Attempt is the trace of one strategy run.
type Attempt struct {
	Strategy       Strategy `json:"strategy"`
	PagesFetched   int      `json:"pages_fetched"`
	TerminatedBy   Reason   `json:"terminated_by"`
	DuplicatePages int      `json:"duplicate_pages"`
	Unique         int      `json:"unique"`
	SampledOffsets []int    `json:"sampled_offsets"`
	Error          string   `json:"error,omitempty"`
}

// Debug is the diagnostic record of a selection. It is persisted, not only logged.
type Debug struct {
	Strategy       Strategy  `json:"strategy"`
	TerminatedBy   Reason    `json:"terminated_by"`
	PagesFetched   int       `json:"pages_fetched"`
	DuplicatePages int       `json:"duplicate_pages"`
	SampledOffsets []int     `json:"sampled_offsets"`
	FirstCount     int       `json:"first_count"`
	FetchedUnique  int       `json:"fetched_unique"`
	Total          int       `json:"total"`
	Limit          int       `json:"limit"`
	BaseOffset     int       `json:"base_offset"`
	Attempts       []Attempt `json:"attempts,omitempty"`
}

// Result is the winning deduplicated item list and its diagnostics.
type Result[T any] struct {
	Items []T
	Debug Debug
}
