package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaginateAppliesWindow(t *testing.T) {
	query, args := paginate("SELECT 1", nil, ListFilter{Page: 3, PerPage: 25})
	assert.Equal(t, "SELECT 1 LIMIT $1 OFFSET $2", query)
	assert.Equal(t, []any{25, 50}, args)

	query, args = paginate("SELECT 1", []any{time.Time{}}, ListFilter{})
	assert.Equal(t, "SELECT 1 LIMIT $2 OFFSET $3", query)
	assert.Equal(t, 50, args[1], "default page size")
	assert.Equal(t, 0, args[2], "first page starts at the top")
}

func TestRangeClauseBounds(t *testing.T) {
	where, args := rangeClause(ListFilter{}, "occurred_at")
	assert.Empty(t, where)
	assert.Empty(t, args)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	where, args = rangeClause(ListFilter{From: from, To: to}, "occurred_at")
	assert.Equal(t, " WHERE occurred_at >= $1 AND occurred_at <= $2", where)
	assert.Equal(t, []any{from, to}, args)
}
