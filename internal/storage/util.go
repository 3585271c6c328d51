package storage

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// defaultLimit and maxLimit bound list page sizes
const (
	defaultLimit = 20
	maxLimit     = 100
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// pageBounds turns pagination params into LIMIT and OFFSET values. The cursor
// is the offset of the next page.
func pageBounds(p PaginationParams) (limit, offset int, err error) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if p.Cursor != "" {
		offset, err = strconv.Atoi(p.Cursor)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid cursor %q", p.Cursor)
		}
	}
	return limit, offset, nil
}

// page trims a limit+1 result set and computes the next cursor.
func page[T any](rows []T, limit, offset int) *PaginatedResult[T] {
	res := &PaginatedResult[T]{Data: rows}
	if len(rows) > limit {
		res.Data = rows[:limit]
		res.HasMore = true
		res.NextCursor = strconv.Itoa(offset + limit)
	}
	return res
}
