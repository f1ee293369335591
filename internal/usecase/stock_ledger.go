package usecase

import (
	"context"
	"fmt"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type ReserveItem struct {
	ProductID int64
	Qty       int64
}

// 在庫行なし
type NoInventoryError struct {
	ProductID int64
}

func (e *NoInventoryError) Error() string {
	return fmt.Sprintf("product %d is not stocked at this store", e.ProductID)
}

// 在庫不足。Availableは呼び出し元にそのまま見せる
type InsufficientStockError struct {
	ProductID int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Available: %d", e.Available)
}

// 在庫の増減と台帳追記を必ずペアで行う唯一の窓口。
// 呼び出し元のトランザクション（TxRepos）の中で動くことが前提で、
// 1品でも失敗したらエラーを返してトランザクションごと巻き戻させる。
type StockLedger struct{}

func NewStockLedger() *StockLedger {
	return &StockLedger{}
}

// 全品目を減算して台帳にREMOVEを残す。all-or-nothing。
func (l *StockLedger) Reserve(ctx context.Context, r repo.TxRepos, storeID int64, items []ReserveItem, actorUserID int64, orderID *int64) error {
	for _, it := range items {
		stock, found, err := r.Inventory().FindStock(ctx, storeID, it.ProductID)
		if err != nil {
			return err
		}
		if !found {
			return &NoInventoryError{ProductID: it.ProductID}
		}

		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, storeID, it.ProductID, it.Qty)
		if err != nil {
			return err
		}
		if !ok {
			// 条件付きUPDATEに負けた＝他の注文が先に取った。現在値を報告する
			avail, _, err := r.Inventory().FindStock(ctx, storeID, it.ProductID)
			if err != nil {
				avail = stock
			}
			return &InsufficientStockError{ProductID: it.ProductID, Available: avail}
		}

		if err := r.Inventory().AppendJournal(ctx, model.StockJournal{
			StoreID:     storeID,
			ProductID:   it.ProductID,
			Delta:       -it.Qty,
			Reason:      model.StockJournalRemove,
			ActorUserID: actorUserID,
			OrderID:     orderID,
			Note:        "order reserve",
		}); err != nil {
			return err
		}
	}
	return nil
}

// 対称の在庫戻し。キャンセル1回につき1回だけ呼ばれる
// （ステータスCASが多重実行を防ぐので、ここでは重複チェックしない）。
func (l *StockLedger) Restore(ctx context.Context, r repo.TxRepos, storeID int64, items []ReserveItem, actorUserID int64, orderID *int64) error {
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, storeID, it.ProductID, it.Qty); err != nil {
			return err
		}
		if err := r.Inventory().AppendJournal(ctx, model.StockJournal{
			StoreID:     storeID,
			ProductID:   it.ProductID,
			Delta:       it.Qty,
			Reason:      model.StockJournalAdd,
			ActorUserID: actorUserID,
			OrderID:     orderID,
			Note:        "order cancel restore",
		}); err != nil {
			return err
		}
	}
	return nil
}
