package events

import (
	"encoding/json"
	"time"
)

const (
	TopicOrders = "grocery.orders"

	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // 上のconst
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID    int64     `json:"order_id"`
	UserID     int64     `json:"user_id"`
	StoreID    int64     `json:"store_id"`
	Items      []ItemQty `json:"items"`
	GrandTotal int64     `json:"grand_total"`
}

type OrderStatusChangedPayload struct {
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Actor   string `json:"actor"` // user / admin / job
}

// Publisherはコミット後のbest-effort配信。失敗してもDBの状態が真実。
type Publisher interface {
	OrderCreated(p OrderCreatedPayload)
	OrderStatusChanged(p OrderStatusChangedPayload)
	Close()
}

// kafkaが無効な構成（テスト・ローカル）用
type NoopPublisher struct{}

func (NoopPublisher) OrderCreated(OrderCreatedPayload)             {}
func (NoopPublisher) OrderStatusChanged(OrderStatusChangedPayload) {}
func (NoopPublisher) Close()                                       {}
