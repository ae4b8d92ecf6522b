package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimDetectsLookAheadRow(t *testing.T) {
	p := Pagination{Limit: 20}.Normalize(50)
	assert.Equal(t, 21, p.FetchLimit())

	rows := make([]int, 21)
	page, info := Trim(rows, p)
	assert.Len(t, page, 20)
	assert.True(t, info.HasMore)
	assert.Equal(t, 20, info.NextOffset)

	page, info = Trim(make([]int, 20), p)
	assert.Len(t, page, 20)
	assert.False(t, info.HasMore)
	assert.Zero(t, info.NextOffset)
}

func TestNormalizeDefaults(t *testing.T) {
	p := Pagination{Offset: -3}.Normalize(50)
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)
}
