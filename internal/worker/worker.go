package worker

import (
	"context"
	"errors"
	"math"
	"time"

	"app/internal/jobqueue"
	"app/internal/metrics"
	"app/internal/usecase"

	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize = 32
	baseBackoff      = 5 * time.Second
	maxBackoff       = 10 * time.Minute
)

// ジョブが実際に呼ぶ遷移だけに絞ったインターフェース
type Fulfillment interface {
	AutoCancel(ctx context.Context, orderID int64) error
	AutoConfirm(ctx context.Context, orderID int64) error
}

// 期限が来た遅延ジョブを取り出して状態遷移を実行するワーカー。
// at-least-once前提。ジョブが二重に渡ってもFulfillment側のCASガードで
// 二重適用にはならない。失敗は指数バックオフで積み直す
type Worker struct {
	queue       jobqueue.Queue
	fulfill     Fulfillment
	log         *logrus.Logger
	interval    time.Duration
	maxAttempts int
}

func New(queue jobqueue.Queue, fulfill Fulfillment, log *logrus.Logger, interval time.Duration, maxAttempts int) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		queue:       queue,
		fulfill:     fulfill,
		log:         log,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// ctxが生きている間ポーリングし続ける
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	jobs, err := w.queue.PopDue(ctx, time.Now(), defaultBatchSize)
	if err != nil {
		w.log.WithError(err).Error("failed to pop due jobs")
		return
	}

	for _, job := range jobs {
		w.handle(ctx, job)
	}
}

// Handleは1ジョブを実行する。テストから直接呼べるよう公開
func (w *Worker) Handle(ctx context.Context, job jobqueue.Job) {
	w.handle(ctx, job)
}

func (w *Worker) handle(ctx context.Context, job jobqueue.Job) {
	logg := w.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"kind":     job.Kind,
		"order_id": job.OrderID,
		"attempt":  job.Attempts + 1,
	})
	logg.WithField("step", "start").Info("executing delayed job")

	var err error
	switch job.Kind {
	case jobqueue.KindAutoCancel:
		err = w.fulfill.AutoCancel(ctx, job.OrderID)
	case jobqueue.KindAutoConfirm:
		err = w.fulfill.AutoConfirm(ctx, job.OrderID)
	default:
		// 知らない種別は積み直しても直らない
		logg.Error("unknown job kind, dropping")
		metrics.JobsProcessed.WithLabelValues(job.Kind, "dropped").Inc()
		return
	}

	if err == nil {
		logg.WithField("step", "done").Info("delayed job completed")
		metrics.JobsProcessed.WithLabelValues(job.Kind, "ok").Inc()
		return
	}

	job.Attempts++
	if job.Attempts >= w.maxAttempts {
		// 静かに捨てない。ログとメトリクスで運用に見えるようにする
		logg.WithError(err).Error("delayed job exhausted retries")
		metrics.JobsProcessed.WithLabelValues(job.Kind, "dead").Inc()
		return
	}

	delay := backoff(job.Attempts)
	if errors.Is(err, usecase.ErrAutoConfirmTooEarly) {
		logg.WithField("retry_in", delay.String()).Info("auto-confirm too early, retrying later")
	} else {
		logg.WithError(err).WithField("retry_in", delay.String()).Warn("delayed job failed, retrying")
	}
	metrics.JobsProcessed.WithLabelValues(job.Kind, "retry").Inc()

	if err := w.queue.Enqueue(ctx, job, delay); err != nil {
		logg.WithError(err).Error("failed to re-enqueue job")
	}
}

// base * 2^(attempt-1)、上限つき
func backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return baseBackoff
	}
	d := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
