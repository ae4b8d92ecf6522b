// Package query turns free text into normalized search tokens and cache keys.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/catalogsync/internal/cache"
)

const minTokenLen = 2

var separators = regexp.MustCompile(`[^a-z0-9äöå.-]+`)

// Tokenize lower-cases the query, splits on anything outside [a-z0-9äöå.-]
// and drops tokens shorter than two characters.
func Tokenize(q string) []string {
	cleaned := separators.ReplaceAllString(strings.ToLower(q), " ")
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) < minTokenLen {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// CacheKey identifies a normalized request. Token order and filter order do
// not change the key.
func CacheKey(tokens []string, filters map[string]string, limit, offset int) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	deduped := sorted[:0]
	for i, token := range sorted {
		if i > 0 && token == sorted[i-1] {
			continue
		}
		deduped = append(deduped, token)
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+3)
	parts = append(parts, "q="+strings.Join(deduped, "+"))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, filters[name]))
	}
	parts = append(parts, "limit="+strconv.Itoa(limit), "offset="+strconv.Itoa(offset))
	return cache.Key(parts...)
}
