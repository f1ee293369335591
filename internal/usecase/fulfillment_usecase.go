package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"app/internal/domain/model"
	"app/internal/events"
	"app/internal/jobqueue"
	repo "app/internal/repository"

	"github.com/sirupsen/logrus"
)

// 自動受取確認がdwell時間より早く発火したときのエラー。
// ワーカーに返すとキューのリトライ/バックオフで後から再実行される
var ErrAutoConfirmTooEarly = errors.New("auto-confirm fired before dwell time elapsed")

// 管理者がキャンセルできる状態。ユーザーはPENDING_PAYMENTのみ
var adminCancellable = map[model.OrderStatus]bool{
	model.OrderStatusPendingPayment: true,
	model.OrderStatusPaymentReview:  true,
	model.OrderStatusProcessing:     true,
}

// 注文ステータス遷移の唯一の持ち主。
// すべての遷移は「現在のステータスが期待値のときだけ更新」のCASで、
// at-least-once配送のジョブが二重に来ても安全になっている。
type FulfillmentUsecase struct {
	tx        repo.TransactionManager
	ledger    *StockLedger
	scheduler *jobqueue.Scheduler
	pub       events.Publisher
	log       *logrus.Logger

	// 出荷から自動受取確認までのdwell時間（デフォルト7日）
	autoConfirmAfter time.Duration
}

func NewFulfillmentUsecase(
	tx repo.TransactionManager,
	ledger *StockLedger,
	scheduler *jobqueue.Scheduler,
	pub events.Publisher,
	log *logrus.Logger,
	autoConfirmAfter time.Duration,
) *FulfillmentUsecase {
	return &FulfillmentUsecase{
		tx:               tx,
		ledger:           ledger,
		scheduler:        scheduler,
		pub:              pub,
		log:              log,
		autoConfirmAfter: autoConfirmAfter,
	}
}

// 支払い証明のアップロード: PENDING_PAYMENT -> PAYMENT_REVIEW。
// 成功したら予約済みの自動キャンセルを取り消す。
func (u *FulfillmentUsecase) SubmitPaymentProof(ctx context.Context, userID int64, orderID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		//他人の注文は「存在しない扱い」にする
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusPendingPayment, model.OrderStatusPaymentReview)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !applied {
			// 支払い期限切れ等で既に先へ進んでいる
			return NewHTTPError(http.StatusConflict, "order is no longer awaiting payment")
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 証明が届いたので時限キャンセルは解除。ジョブが既に走っていた場合は
	// 上のCAS（PENDING_PAYMENTのときだけ）が最後の防波堤になる
	if err := u.scheduler.CancelAutoCancel(ctx, orderID); err != nil {
		u.log.WithError(err).WithField("order_id", orderID).
			Warn("failed to remove auto-cancel job")
	}

	u.publishStatus(orderID, model.OrderStatusPendingPayment, model.OrderStatusPaymentReview, "user")
	return nil
}

// 支払い確認（管理者）: PAYMENT_REVIEW -> PROCESSING。
// 受取確認（ConfirmDelivery）とは別の操作。混同しない
func (u *FulfillmentUsecase) ConfirmPayment(ctx context.Context, actorUserID int64, orderID int64) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.applyGuarded(ctx, orderID,
		model.OrderStatusPaymentReview, model.OrderStatusProcessing,
		"order is not under payment review")
	if err != nil {
		return err
	}

	u.publishStatus(orderID, model.OrderStatusPaymentReview, model.OrderStatusProcessing, "admin")
	return nil
}

// ゲートウェイWebhookで支払い確定したとき。
// PENDING_PAYMENTからでもPAYMENT_REVIEWからでもPROCESSINGへ進める。
// どちらでもなければ（再配送・レース）黙ってスキップ
func (u *FulfillmentUsecase) MarkPaid(ctx context.Context, orderID int64) error {
	var from model.OrderStatus

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusPendingPayment, model.OrderStatusProcessing)
		if err != nil {
			return err
		}
		if applied {
			from = model.OrderStatusPendingPayment
			return nil
		}

		applied, err = r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusPaymentReview, model.OrderStatusProcessing)
		if err != nil {
			return err
		}
		if applied {
			from = model.OrderStatusPaymentReview
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := u.scheduler.CancelAutoCancel(ctx, orderID); err != nil {
		u.log.WithError(err).WithField("order_id", orderID).
			Warn("failed to remove auto-cancel job")
	}

	if from == "" {
		u.log.WithField("order_id", orderID).
			Info("payment confirmation skipped, order not awaiting payment")
		return nil
	}

	u.publishStatus(orderID, from, model.OrderStatusProcessing, "gateway")
	return nil
}

// 出荷（管理者）: PROCESSING -> SHIPPED。自動受取確認を予約する
func (u *FulfillmentUsecase) Ship(ctx context.Context, actorUserID int64, orderID int64) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.applyGuarded(ctx, orderID,
		model.OrderStatusProcessing, model.OrderStatusShipped,
		"order is not being processed")
	if err != nil {
		return err
	}

	if err := u.scheduler.ScheduleAutoConfirm(ctx, orderID, u.autoConfirmAfter); err != nil {
		u.log.WithError(err).WithField("order_id", orderID).
			Error("failed to schedule auto-confirm job")
	}

	u.publishStatus(orderID, model.OrderStatusProcessing, model.OrderStatusShipped, "admin")
	return nil
}

// 受取確認（ユーザー）: SHIPPED -> CONFIRMED
func (u *FulfillmentUsecase) ConfirmDelivery(ctx context.Context, userID int64, orderID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusShipped, model.OrderStatusConfirmed)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !applied {
			return NewHTTPError(http.StatusConflict, "order is not shipped")
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.publishStatus(orderID, model.OrderStatusShipped, model.OrderStatusConfirmed, "user")
	return nil
}

// キャンセル。ユーザーはPENDING_PAYMENTのみ、管理者は支払い後の初期状態からも可。
// ステータス反転・在庫戻し・バウチャー戻しは同一トランザクション
func (u *FulfillmentUsecase) Cancel(ctx context.Context, actorUserID int64, orderID int64, asAdmin bool) error {
	if actorUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var from model.OrderStatus

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !asAdmin && o.UserID != actorUserID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		if asAdmin {
			if !adminCancellable[o.Status] {
				return NewHTTPError(http.StatusConflict, fmt.Sprintf("cannot cancel %s order", o.Status))
			}
		} else if o.Status != model.OrderStatusPendingPayment {
			return NewHTTPError(http.StatusConflict, "order is no longer cancellable")
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID, o.Status, model.OrderStatusCancelled)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !applied {
			// 読み取りと更新の間で誰かが進めた
			return NewHTTPError(http.StatusConflict, "order state changed, retry")
		}
		from = o.Status

		if err := u.rollbackOrder(ctx, r, o, actorUserID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := u.scheduler.CancelAutoCancel(ctx, orderID); err != nil {
		u.log.WithError(err).WithField("order_id", orderID).
			Warn("failed to remove auto-cancel job")
	}

	u.publishStatus(orderID, from, model.OrderStatusCancelled, "user")
	return nil
}

// 時限ジョブ: 支払い期限切れの自動キャンセル。
// PENDING_PAYMENTのままのときだけ発火する。他の状態ならスキップ（成功扱い）
func (u *FulfillmentUsecase) AutoCancel(ctx context.Context, orderID int64) error {
	skipped := false

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			// 注文が消えていたらやることはない
			skipped = true
			return nil
		}
		if err != nil {
			return err
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusPendingPayment, model.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !applied {
			// 支払い済み等で先へ進んでいる。何も変えずに終わる
			skipped = true
			return nil
		}

		return u.rollbackOrder(ctx, r, o, o.UserID)
	})
	if err != nil {
		return err
	}

	if skipped {
		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"step":     "guard",
		}).Info("auto-cancel skipped, order no longer pending payment")
		return nil
	}

	u.publishStatus(orderID, model.OrderStatusPendingPayment, model.OrderStatusCancelled, "job")
	return nil
}

// 時限ジョブ: 出荷後dwell時間経過での自動受取確認。
// SHIPPEDのままのときだけ発火。早すぎる発火はエラーにしてキューに再試行させる
func (u *FulfillmentUsecase) AutoConfirm(ctx context.Context, orderID int64) error {
	skipped := false

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			skipped = true
			return nil
		}
		if err != nil {
			return err
		}
		if o.Status != model.OrderStatusShipped {
			skipped = true
			return nil
		}

		// dwell時間の再チェック。updated_atは出荷時刻
		if time.Since(o.UpdatedAt) < u.autoConfirmAfter {
			return ErrAutoConfirmTooEarly
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID,
			model.OrderStatusShipped, model.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if !applied {
			skipped = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if skipped {
		u.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"step":     "guard",
		}).Info("auto-confirm skipped, order not in shipped state")
		return nil
	}

	u.publishStatus(orderID, model.OrderStatusShipped, model.OrderStatusConfirmed, "job")
	return nil
}

// 存在確認なしの単純なCAS遷移（管理者操作用）
func (u *FulfillmentUsecase) applyGuarded(ctx context.Context, orderID int64, from, to model.OrderStatus, conflictMsg string) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().FindByID(ctx, orderID); errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		} else if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		applied, err := r.Orders().UpdateStatusFrom(ctx, orderID, from, to)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !applied {
			return NewHTTPError(http.StatusConflict, conflictMsg)
		}
		return nil
	})
}

func (u *FulfillmentUsecase) publishStatus(orderID int64, from, to model.OrderStatus, actor string) {
	u.pub.OrderStatusChanged(events.OrderStatusChangedPayload{
		OrderID: orderID,
		From:    string(from),
		To:      string(to),
		Actor:   actor,
	})
}
