package job

import (
	"strings"
	"time"
)

// Pagination bounds enforced on every list query.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SortOrder selects the ordering applied to list results.
type SortOrder int

const (
	// SortByUpdatedDesc returns the most recently touched jobs first.
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc returns the oldest jobs first.
	SortByUpdatedAsc
)

// ListOptions is the normalized filter set shared by every Store
// implementation. Callers build it through ListOption functions; stores
// receive it already sanitized.
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	Order      SortOrder
	Query      string
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit caps how many jobs a single query may return.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset skips the first n matches, for offset pagination.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses restricts results to the given lifecycle states.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithUpdatedSince keeps jobs touched at or after ts.
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.UpdatedGTE = unixOrZero(ts)
	}
}

// WithUpdatedUntil keeps jobs touched at or before ts.
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.UpdatedLTE = unixOrZero(ts)
	}
}

// WithResultPresence keeps only jobs that do (or do not) carry search results.
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) {
		value := hasResult
		opts.HasResult = &value
	}
}

// WithSortOrder overrides the default newest-first ordering.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery fuzzy-matches against the job ID, query text, errors and results.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

// buildListOptions folds the option functions into a sanitized ListOptions.
func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.sanitize()
	return options
}

func (opts *ListOptions) sanitize() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Statuses = dedupeStatuses(opts.Statuses)
	opts.Query = strings.TrimSpace(opts.Query)
}

// dedupeStatuses drops invalid and repeated entries, preserving order.
func dedupeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	kept := input[:0]
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, dup := seen[status]; dup {
			continue
		}
		seen[status] = struct{}{}
		kept = append(kept, status)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}
