package repository

import (
	"context"

	"app/internal/domain/model"
)

// 店舗別在庫と在庫台帳。呼び出しはStockLedger経由のみ
// （checkout・rollbackが直接触ることは禁止）。
type InventoryRepository interface {
	// 現在の在庫数。行がなければ found=false
	FindStock(ctx context.Context, storeID int64, productID int64) (stock int64, found bool, err error)

	// 在庫が足りるときだけ減算（条件付きUPDATEなので競合しても負にはならない）
	DecreaseStockIfEnough(ctx context.Context, storeID int64, productID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, storeID int64, productID int64, qty int64) error

	// 台帳追記。在庫変更と必ずペアで、同一トランザクション内で呼ぶ
	AppendJournal(ctx context.Context, entry model.StockJournal) error
}
