package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCategoryTree(t *testing.T) {
	one, two := int64(1), int64(2)
	missing := int64(99)
	tree := BuildCategoryTree([]Category{
		{ID: 1, Name: "Food"},
		{ID: 2, ParentID: &one, Name: "Snacks"},
		{ID: 3, ParentID: &two, Name: "Chips"},
		{ID: 4, ParentID: &missing, Name: "Orphan"},
	})

	require.Len(t, tree, 2)
	assert.Equal(t, "Food", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.Equal(t, "Chips", tree[0].Children[0].Children[0].Name)
	assert.Equal(t, "Orphan", tree[1].Name)
}
