// Package utils provides small helpers shared by the HTTP layer.
package utils

import "strconv"

// Page bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses page and page_size query values and bounds them to
// [1, ∞) and [1, MaxPageSize].
func ClampPage(pageStr, sizeStr string) (page, size int) {
	page = max(AtoiDefault(pageStr, DefaultPage), 1)
	size = min(max(AtoiDefault(sizeStr, DefaultPageSize), 1), MaxPageSize)
	return page, size
}

// TotalPages is ceil(total / size); zero when size is not positive.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
