package jobqueue

import (
	"context"
	"fmt"
	"time"
)

// ジョブ種別。IDが <kind>-<orderID> で決定的なので、
// 同じ注文の同じ種別を二度積んでも1本に畳まれる。
const (
	KindAutoCancel  = "auto-cancel"
	KindAutoConfirm = "auto-confirm"
)

type Job struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	OrderID  int64  `json:"order_id"`
	Attempts int    `json:"attempts"`
}

func AutoCancelJobID(orderID int64) string {
	return fmt.Sprintf("%s-%d", KindAutoCancel, orderID)
}

func AutoConfirmJobID(orderID int64) string {
	return fmt.Sprintf("%s-%d", KindAutoConfirm, orderID)
}

// 遅延ジョブキュー。at-least-once配送。
// Enqueueは同じIDなら実行時刻を上書き（dedup）。
// Removeは実行前のジョブだけ取り消せる（実行中のものは状態ガード側で守る）。
type Queue interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	Remove(ctx context.Context, jobID string) error

	// nowまでに期限が来たジョブを最大limit件claimして返す。
	// 1つのジョブは複数ワーカーのうち1つにしか渡らない。
	PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

// 注文ライフサイクルの時限遷移を予約する窓口。
type Scheduler struct {
	q Queue
}

func NewScheduler(q Queue) *Scheduler {
	return &Scheduler{q: q}
}

// 支払い期限に自動キャンセルを予約
func (s *Scheduler) ScheduleAutoCancel(ctx context.Context, orderID int64, delay time.Duration) error {
	return s.q.Enqueue(ctx, Job{
		ID:      AutoCancelJobID(orderID),
		Kind:    KindAutoCancel,
		OrderID: orderID,
	}, delay)
}

// 支払い確認が取れた時点で呼ぶ。既に消えていても害はない
func (s *Scheduler) CancelAutoCancel(ctx context.Context, orderID int64) error {
	return s.q.Remove(ctx, AutoCancelJobID(orderID))
}

// 出荷時に自動受取確認を予約
func (s *Scheduler) ScheduleAutoConfirm(ctx context.Context, orderID int64, delay time.Duration) error {
	return s.q.Enqueue(ctx, Job{
		ID:      AutoConfirmJobID(orderID),
		Kind:    KindAutoConfirm,
		OrderID: orderID,
	}, delay)
}
