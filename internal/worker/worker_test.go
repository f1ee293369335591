package worker_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"app/internal/jobqueue"
	"app/internal/usecase"
	"app/internal/worker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// 呼び出しを記録するだけのFulfillment。errsに積んだ順でエラーを返す
type fulfillmentStub struct {
	cancelCalls  []int64
	confirmCalls []int64
	errs         []error
}

func (s *fulfillmentStub) nextErr() error {
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *fulfillmentStub) AutoCancel(_ context.Context, orderID int64) error {
	s.cancelCalls = append(s.cancelCalls, orderID)
	return s.nextErr()
}

func (s *fulfillmentStub) AutoConfirm(_ context.Context, orderID int64) error {
	s.confirmCalls = append(s.confirmCalls, orderID)
	return s.nextErr()
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestWorker_DispatchesByKind(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{}
	w := worker.New(q, stub, newTestLogger(), time.Second, 3)

	w.Handle(context.Background(), jobqueue.Job{ID: "auto-cancel-1", Kind: jobqueue.KindAutoCancel, OrderID: 1})
	w.Handle(context.Background(), jobqueue.Job{ID: "auto-confirm-2", Kind: jobqueue.KindAutoConfirm, OrderID: 2})

	assert.Equal(t, []int64{1}, stub.cancelCalls)
	assert.Equal(t, []int64{2}, stub.confirmCalls)
	assert.Equal(t, 0, q.Len())
}

func TestWorker_UnknownKindDropped(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{}
	w := worker.New(q, stub, newTestLogger(), time.Second, 3)

	w.Handle(context.Background(), jobqueue.Job{ID: "x", Kind: "unknown", OrderID: 1})

	//呼ばれず、積み直しもされない
	assert.Empty(t, stub.cancelCalls)
	assert.Empty(t, stub.confirmCalls)
	assert.Equal(t, 0, q.Len())
}

func TestWorker_FailureReenqueuesWithBackoff(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{errs: []error{errors.New("db down")}}
	w := worker.New(q, stub, newTestLogger(), time.Second, 3)

	w.Handle(context.Background(), jobqueue.Job{ID: "auto-cancel-1", Kind: jobqueue.KindAutoCancel, OrderID: 1})

	//1回目の失敗は積み直し。すぐには取れない（バックオフ）
	assert.Equal(t, 1, q.Len())
	jobs, err := q.PopDue(context.Background(), time.Now(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(jobs))

	//バックオフ後には取れて、attemptが増えている
	jobs, err = q.PopDue(context.Background(), time.Now().Add(time.Minute), 10)
	assert.NoError(t, err)
	if assert.Equal(t, 1, len(jobs)) {
		assert.Equal(t, 1, jobs[0].Attempts)
	}
}

func TestWorker_TooEarlyAutoConfirmRetries(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{errs: []error{usecase.ErrAutoConfirmTooEarly}}
	w := worker.New(q, stub, newTestLogger(), time.Second, 3)

	w.Handle(context.Background(), jobqueue.Job{ID: "auto-confirm-1", Kind: jobqueue.KindAutoConfirm, OrderID: 1})

	//早すぎる発火は捨てずに再試行させる
	assert.Equal(t, 1, q.Len())
}

func TestWorker_DeadAfterMaxAttempts(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{errs: []error{errors.New("still broken")}}
	w := worker.New(q, stub, newTestLogger(), time.Second, 3)

	//最終リトライ（attempts=2、上限3）で失敗したら積み直さない
	w.Handle(context.Background(), jobqueue.Job{ID: "auto-cancel-1", Kind: jobqueue.KindAutoCancel, OrderID: 1, Attempts: 2})

	assert.Equal(t, 0, q.Len())
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	q := jobqueue.NewMemoryQueue()
	stub := &fulfillmentStub{}
	w := worker.New(q, stub, newTestLogger(), 10*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.NoError(t, q.Enqueue(ctx, jobqueue.Job{ID: "auto-cancel-1", Kind: jobqueue.KindAutoCancel, OrderID: 1}, 0))

	//ポーリングで拾われるのを待つ
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Equal(t, []int64{1}, stub.cancelCalls)
}
