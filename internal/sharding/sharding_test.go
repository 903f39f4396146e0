package sharding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetShard(t *testing.T) {
	r := NewShardRouter(4)
	assert.Equal(t, 0, r.GetShard(0))
	assert.Equal(t, 3, r.GetShard(7))
	assert.Equal(t, r.GetShard(7), r.GetShard(7))
	assert.Equal(t, 1, r.GetShard(-3))

	single := NewShardRouter(0)
	assert.Equal(t, 0, single.GetShard(12345))
}
