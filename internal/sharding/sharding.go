package sharding

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

// GetShard maps an id onto [0, ShardCount). Equal ids always land on the same shard.
func (r *ShardRouter) GetShard(id int64) int {
	shardIndex := id % int64(r.ShardCount)
	if shardIndex < 0 {
		shardIndex += int64(r.ShardCount)
	}
	return int(shardIndex)
}
