package model

import "time"

// 店舗。配送可能半径の中から最寄りを選ぶ。
type Store struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Address         string    `gorm:"type:varchar(255)" json:"address"`
	Latitude        float64   `gorm:"not null" json:"latitude"`
	Longitude       float64   `gorm:"not null" json:"longitude"`
	ServiceRadiusKM float64   `gorm:"not null;default:10" json:"service_radius_km"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
