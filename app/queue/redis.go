package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisQueue keeps poll jobs in one sorted set scored by run time in milliseconds.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).WithField("addr", addr).Warn("Failed to connect to Redis")
	}
	return rdb
}

func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Schedule(ctx context.Context, key JobKey, runAt time.Time) (bool, error) {
	added, err := q.client.ZAddNX(ctx, q.key, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: key.String(),
	}).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (q *RedisQueue) UnscheduleAll(ctx context.Context, key JobKey) (int, error) {
	removed, err := q.client.ZRem(ctx, q.key, key.String()).Result()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (q *RedisQueue) ListPending(ctx context.Context, key JobKey) ([]Job, error) {
	score, err := q.client.ZScore(ctx, q.key, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return []Job{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []Job{{Key: key, RunAt: time.UnixMilli(int64(score)).UTC()}}, nil
}

// ClaimDue reads due members and keeps only those this caller removed, so concurrent
// workers never fire the same job.
func (q *RedisQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	candidates, err := q.client.ZRangeByScoreWithScores(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]Job, 0, len(candidates))
	for _, candidate := range candidates {
		member, ok := candidate.Member.(string)
		if !ok {
			continue
		}
		removed, err := q.client.ZRem(ctx, q.key, member).Result()
		if err != nil {
			return claimed, err
		}
		if removed == 0 {
			continue
		}
		key, err := ParseJobKey(member)
		if err != nil {
			logrus.WithError(err).WithField("member", member).Warn("Dropping malformed poll job")
			continue
		}
		claimed = append(claimed, Job{Key: key, RunAt: time.UnixMilli(int64(candidate.Score)).UTC()})
	}
	return claimed, nil
}
