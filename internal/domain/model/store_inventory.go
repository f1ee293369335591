package model

import "time"

// (store, product) 複合キーの店舗別在庫。stockは負になってはいけない。
// 変更は必ず StockJournal とペアで行う（InventoryRepository経由のみ）。
type StoreInventory struct {
	StoreID   int64     `gorm:"primaryKey;autoIncrement:false" json:"store_id"`
	ProductID int64     `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	Stock     int64     `gorm:"not null" json:"stock"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
