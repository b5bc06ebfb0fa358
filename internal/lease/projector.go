package lease

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisProjector publishes the running-timer projection as a hash at
// issuetimer:running:<user>.
type RedisProjector struct {
	rdb *redis.Client
}

func NewRedisProjector(rdb *redis.Client) *RedisProjector {
	return &RedisProjector{rdb: rdb}
}

func (p *RedisProjector) SetRunning(ctx context.Context, userID, issueID string, running bool, atMs int64) error {
	return p.rdb.HSet(ctx, runningKey(userID),
		"issueId", issueID,
		"running", strconv.FormatBool(running),
		"updatedAt", strconv.FormatInt(atMs, 10),
	).Err()
}

// Running reads the projection back.
func (p *RedisProjector) Running(ctx context.Context, userID string) (issueID string, running bool, err error) {
	vals, err := p.rdb.HGetAll(ctx, runningKey(userID)).Result()
	if err != nil {
		return "", false, err
	}
	running, _ = strconv.ParseBool(vals["running"])
	return vals["issueId"], running, nil
}

func runningKey(userID string) string { return "issuetimer:running:" + userID }
