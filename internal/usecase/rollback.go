package usecase

import (
	"context"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/sirupsen/logrus"
)

// 注文作成の副作用を打ち消す。呼び出し元のキャンセルと同一トランザクション。
//
//	(a) 全明細の在庫を台帳つきで戻す（必須。失敗したら全体を巻き戻す）
//	(b) 作成時刻前後に使われたバウチャーを未使用へ戻す（best-effort。
//	    失敗してもログだけ残して在庫とステータスは守る）
func (u *FulfillmentUsecase) rollbackOrder(ctx context.Context, r repo.TxRepos, o model.Order, actorUserID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return err
	}

	restore := make([]ReserveItem, 0, len(items))
	for _, it := range items {
		restore = append(restore, ReserveItem{ProductID: it.ProductID, Qty: it.Quantity})
	}

	u.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"store_id": o.StoreID,
		"items":    len(restore),
		"step":     "restore_stock",
	}).Info("rolling back order side effects")

	if err := u.ledger.Restore(ctx, r, o.StoreID, restore, actorUserID, &o.ID); err != nil {
		return err
	}

	// バウチャーはFKではなく時間相関で戻す（既知の精度ギャップ）
	n, err := r.Vouchers().ReactivateUsedWithin(ctx, o.UserID, o.CreatedAt, voucherRollbackWindow)
	if err != nil {
		u.log.WithError(err).WithFields(logrus.Fields{
			"order_id": o.ID,
			"step":     "reactivate_voucher",
		}).Warn("voucher reactivation failed, continuing")
		return nil
	}
	if n > 0 {
		u.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"count":    n,
			"step":     "reactivate_voucher",
		}).Info("vouchers reactivated")
	}
	return nil
}
