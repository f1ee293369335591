package jobqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	job   Job
	runAt time.Time
}

// ローカル開発とテスト用のインメモリ実装。セマンティクスはredis版と同じ
// （同IDのEnqueueで上書き、PopDueのclaimは1回きり）。
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]memoryEntry)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[job.ID] = memoryEntry{job: job, runAt: time.Now().Add(delay)}
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, jobID)
	return nil
}

func (q *MemoryQueue) PopDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]memoryEntry, 0)
	for _, e := range q.entries {
		if !e.runAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].runAt.Before(due[j].runAt) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	jobs := make([]Job, 0, len(due))
	for _, e := range due {
		delete(q.entries, e.job.ID)
		jobs = append(jobs, e.job)
	}
	return jobs, nil
}

// テスト用：残っているジョブ数
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
