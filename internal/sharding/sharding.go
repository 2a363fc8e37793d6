package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of event partitions.
const ShardCount = 1024

// GetShardID returns the deterministic shard for an entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// UserEventSubject is the subject carrying one user's todo changes.
// Format: planner.event.{shard_id}.user.{user_id}
func UserEventSubject(userID string) string {
	return fmt.Sprintf("planner.event.%d.user.%s", GetShardID(userID), userID)
}
