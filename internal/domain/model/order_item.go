package model

import "time"

// 価格は作成時点のスナップショット。後から商品価格が変わっても不変。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	LineTotal           int64     `gorm:"not null" json:"line_total"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
