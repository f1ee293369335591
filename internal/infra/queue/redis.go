package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"app/internal/jobqueue"

	"github.com/redis/go-redis/v9"
)

const (
	// ZSET: member=ジョブID, score=実行予定時刻(unix ms)
	keyDelayed = "jobs:delayed"
	// ペイロード置き場: jobs:data:{job_id}
	keyDataFmt = "jobs:data:%s"
)

// redisのZSETを使った遅延ジョブキュー。
// 同じIDのZAddはscore上書きになるので再スケジュールは自然にdedupされる。
// claimはZRemの戻り値（消せたワーカーだけが勝つ）で排他する。
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func dataKey(jobID string) string {
	return fmt.Sprintf(keyDataFmt, jobID)
}

func (q *RedisQueue) Enqueue(ctx context.Context, job jobqueue.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	runAt := time.Now().Add(delay)

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, dataKey(job.ID), payload, 0)
	pipe.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: job.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Remove(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyDelayed, jobID)
	pipe.Del(ctx, dataKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]jobqueue.Job, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]jobqueue.Job, 0, len(ids))
	for _, id := range ids {
		// ZRemで消せた者だけがこのジョブを実行できる
		n, err := q.rdb.ZRem(ctx, keyDelayed, id).Result()
		if err != nil {
			return jobs, err
		}
		if n == 0 {
			continue // 他のワーカーが先にclaimした
		}

		raw, err := q.rdb.GetDel(ctx, dataKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return jobs, err
		}

		var job jobqueue.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// 壊れたペイロードは積み直さない（ログは呼び出し側）
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
