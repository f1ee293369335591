package model

import "time"

// 配送先住所。座標は店舗解決（最寄り店舗の検索）に使う。
type Address struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`

	//宛名
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	//電話番号
	Phone string `gorm:"type:varchar(30)" json:"phone"`

	Line1 string `gorm:"type:varchar(255);not null" json:"line1"`
	Line2 string `gorm:"type:varchar(255)" json:"line2"`
	City  string `gorm:"type:varchar(255);not null" json:"city"`

	//ジオコーディング済みの座標（未設定ならNULL）
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	//このユーザーのデフォルト住所か
	IsDefault bool `gorm:"not null;default:false" json:"is_default"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
