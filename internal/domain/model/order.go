package model

import "time"

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaymentReview  OrderStatus = "PAYMENT_REVIEW"
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodGateway      PaymentMethod = "GATEWAY"
	PaymentMethodCOD          PaymentMethod = "COD"
)

type ShippingMethod string

const (
	ShippingMethodRegular ShippingMethod = "REGULAR"
	ShippingMethodExpress ShippingMethod = "EXPRESS"
	ShippingMethodPickup  ShippingMethod = "PICKUP"
)

// 金額はすべて最小通貨単位のint64。
// grand_total = subtotal - discount_total + shipping_fee を常に満たす。
type Order struct {
	ID      int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  int64       `gorm:"not null;index" json:"user_id"`
	StoreID int64       `gorm:"not null;index" json:"store_id"`
	Status  OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal      int64 `gorm:"not null" json:"subtotal"`
	ShippingFee   int64 `gorm:"not null" json:"shipping_fee"`
	DiscountTotal int64 `gorm:"not null" json:"discount_total"`
	GrandTotal    int64 `gorm:"not null" json:"grand_total"`
	TotalItems    int64 `gorm:"not null" json:"total_items"`

	PaymentMethod  PaymentMethod  `gorm:"type:varchar(20);not null" json:"payment_method"`
	ShippingMethod ShippingMethod `gorm:"type:varchar(20);not null" json:"shipping_method"`

	// 二重作成防止キー（任意。NULLは重複可）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex" json:"-"`

	// この時刻までに支払いがなければ自動キャンセル
	PaymentDeadlineAt time.Time `gorm:"not null" json:"payment_deadline_at"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
