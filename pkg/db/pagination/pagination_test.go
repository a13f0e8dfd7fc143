package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	p := Pagination{Page: 0, PageSize: 1000}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)

	p = Pagination{}.Normalize()
	assert.Equal(t, DefaultPageSize, p.PageSize)
}

func TestOffsetAndPageInfo(t *testing.T) {
	p := Pagination{Page: 3, PageSize: 10}
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 10, p.Limit())

	info := BuildPageInfo(p, 31)
	assert.True(t, info.HasMore)
	info = BuildPageInfo(p, 30)
	assert.False(t, info.HasMore)
}
