package model

import "time"

type StockJournalReason string

const (
	StockJournalAdd         StockJournalReason = "ADD"
	StockJournalRemove      StockJournalReason = "REMOVE"
	StockJournalTransferIn  StockJournalReason = "TRANSFER_IN"
	StockJournalTransferOut StockJournalReason = "TRANSFER_OUT"
	StockJournalReserve     StockJournalReason = "RESERVE"
	StockJournalRelease     StockJournalReason = "RELEASE"
)

// 在庫増減の追記専用台帳。更新・削除はしない。
// 在庫突合の根拠はテーブルの現在値ではなくこちら。
type StockJournal struct {
	ID          int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID     int64              `gorm:"not null;index:idx_journal_store_product,priority:1" json:"store_id"`
	ProductID   int64              `gorm:"not null;index:idx_journal_store_product,priority:2" json:"product_id"`
	Delta       int64              `gorm:"not null" json:"delta"`
	Reason      StockJournalReason `gorm:"type:varchar(20);not null;index" json:"reason"`
	ActorUserID int64              `gorm:"not null" json:"actor_user_id"`
	OrderID     *int64             `gorm:"index" json:"order_id"`
	Note        string             `gorm:"type:varchar(255)" json:"note"`
	CreatedAt   time.Time          `gorm:"not null;autoCreateTime;index" json:"created_at"`
}
