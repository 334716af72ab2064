package memory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// patternBuckets bounds the query-hash suffix of a pattern key.
const patternBuckets = 10000

// CategoriesKey is the order-independent key for a category set.
func CategoriesKey(categories []string) string {
	sorted := slices.Clone(categories)
	slices.Sort(sorted)
	return strings.Join(sorted, "_")
}

// PatternKey buckets a resolved query under its category set. The hash is a
// content hash so keys survive restarts.
func PatternKey(categories []string, query string) string {
	h := xxhash.Sum64String(strings.ToLower(query)) % patternBuckets
	return fmt.Sprintf("%s_%d", CategoriesKey(categories), h)
}

// keepLast trims s to its newest n entries.
func keepLast[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return slices.Clone(s[len(s)-n:])
}
