package util

import "strconv"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// ParsePaging reads raw page/limit query values. Missing or malformed values
// fall back to defaults; both are clamped to at least 1 and limit to MaxPageLimit.
func ParsePaging(rawPage, rawLimit string) (page, limit int) {
	page = atoiOr(rawPage, 1)
	limit = atoiOr(rawLimit, DefaultPageLimit)
	return ClampPaging(page, limit)
}

// ClampPaging enforces the paging bounds.
func ClampPaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Offset converts page/limit into a row offset.
func Offset(page, limit int) int {
	return (page - 1) * limit
}

func atoiOr(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
