package model

import "time"

// 割引バウチャー。UserIDがNULLなら誰でも使える。
type Voucher struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	UserID    *int64     `gorm:"index" json:"user_id"`
	Amount    int64      `gorm:"not null" json:"amount"`
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	IsUsed    bool       `gorm:"not null;default:false;index" json:"is_used"`
	UsedAt    *time.Time `gorm:"index" json:"used_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}
