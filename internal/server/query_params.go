package server

import (
	"strconv"
	"strings"
)

// optional parses a query value, treating blank as absent.
func optional[T any](raw string, parse func(string) (T, error)) (*T, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	return optional(raw, strconv.ParseBool)
}

func parseOptionalInt(raw string) (*int, error) {
	return optional(raw, strconv.Atoi)
}

// parseSupplierID accepts positive decimal ids only.
func parseSupplierID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return id, err == nil && id > 0
}
