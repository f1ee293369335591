package jobqueue_test

import (
	"context"
	"testing"
	"time"

	"app/internal/jobqueue"

	"github.com/stretchr/testify/assert"
)

func TestJobIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, "auto-cancel-42", jobqueue.AutoCancelJobID(42))
	assert.Equal(t, "auto-confirm-42", jobqueue.AutoConfirmJobID(42))
	assert.Equal(t, jobqueue.AutoCancelJobID(7), jobqueue.AutoCancelJobID(7))
}

func TestMemoryQueue_EnqueueDedupesOnID(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	job := jobqueue.Job{ID: "auto-cancel-1", Kind: jobqueue.KindAutoCancel, OrderID: 1}
	assert.NoError(t, q.Enqueue(ctx, job, 0))
	assert.NoError(t, q.Enqueue(ctx, job, 0))

	//同じIDは1本に畳まれる
	assert.Equal(t, 1, q.Len())

	jobs, err := q.PopDue(ctx, time.Now(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(jobs))
	assert.Equal(t, int64(1), jobs[0].OrderID)
}

func TestMemoryQueue_RemoveBeforeDue(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	s := jobqueue.NewScheduler(q)
	assert.NoError(t, s.ScheduleAutoCancel(ctx, 5, time.Hour))
	assert.Equal(t, 1, q.Len())

	assert.NoError(t, s.CancelAutoCancel(ctx, 5))
	assert.Equal(t, 0, q.Len())

	//消えていても害はない
	assert.NoError(t, s.CancelAutoCancel(ctx, 5))
}

func TestMemoryQueue_PopDueRespectsDelay(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	assert.NoError(t, q.Enqueue(ctx, jobqueue.Job{ID: "a", Kind: jobqueue.KindAutoCancel, OrderID: 1}, time.Hour))
	assert.NoError(t, q.Enqueue(ctx, jobqueue.Job{ID: "b", Kind: jobqueue.KindAutoCancel, OrderID: 2}, 0))

	jobs, err := q.PopDue(ctx, time.Now(), 10)
	assert.NoError(t, err)
	if assert.Equal(t, 1, len(jobs)) {
		assert.Equal(t, "b", jobs[0].ID)
	}

	//まだ期限前のジョブは残る
	assert.Equal(t, 1, q.Len())

	//期限を過ぎれば取れる
	jobs, err = q.PopDue(ctx, time.Now().Add(2*time.Hour), 10)
	assert.NoError(t, err)
	if assert.Equal(t, 1, len(jobs)) {
		assert.Equal(t, "a", jobs[0].ID)
	}
}

func TestMemoryQueue_ClaimIsOnce(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	assert.NoError(t, q.Enqueue(ctx, jobqueue.Job{ID: "a", Kind: jobqueue.KindAutoConfirm, OrderID: 1}, 0))

	first, err := q.PopDue(ctx, time.Now(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(first))

	//claim済みのジョブは二度渡らない
	second, err := q.PopDue(ctx, time.Now(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(second))
}

func TestMemoryQueue_PopDueHonorsLimit(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		assert.NoError(t, q.Enqueue(ctx, jobqueue.Job{ID: jobqueue.AutoCancelJobID(i), Kind: jobqueue.KindAutoCancel, OrderID: i}, 0))
	}

	jobs, err := q.PopDue(ctx, time.Now(), 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(jobs))
	assert.Equal(t, 2, q.Len())
}

func TestScheduler_ReschedulingSameOrderCollapses(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	ctx := context.Background()
	s := jobqueue.NewScheduler(q)

	assert.NoError(t, s.ScheduleAutoConfirm(ctx, 9, time.Minute))
	assert.NoError(t, s.ScheduleAutoConfirm(ctx, 9, time.Hour))

	//同じ注文の同じ種別は常に1本
	assert.Equal(t, 1, q.Len())
}
