package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name       string
		params     PaginationParams
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", PaginationParams{}, defaultLimit, 0, false},
		{"explicit", PaginationParams{Limit: 5, Cursor: "10"}, 5, 10, false},
		{"capped", PaginationParams{Limit: 1000}, maxLimit, 0, false},
		{"bad cursor", PaginationParams{Cursor: "abc"}, 0, 0, true},
		{"negative cursor", PaginationParams{Cursor: "-1"}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset, err := pageBounds(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestPage(t *testing.T) {
	res := page([]int{1, 2, 3}, 2, 4)
	assert.Equal(t, []int{1, 2}, res.Data)
	assert.True(t, res.HasMore)
	assert.Equal(t, "6", res.NextCursor)

	res = page([]int{1, 2}, 2, 0)
	assert.False(t, res.HasMore)
	assert.Empty(t, res.NextCursor)
}

func TestGenerateID(t *testing.T) {
	a, b := generateID(), generateID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
