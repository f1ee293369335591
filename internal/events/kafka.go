package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type KafkaPublisher struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *logrus.Logger
}

func NewKafkaPublisher(brokers []string, log *logrus.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicOrders,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, 256),
		closeCh: make(chan struct{}),
		log:     log,
	}
	go p.loop()
	return p
}

// 送信は専用goroutine。closeで残りをflushしてから抜ける。
func (p *KafkaPublisher) loop() {
	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil {
			p.log.WithError(err).WithField("key", string(m.Key)).
				Warn("order event publish failed")
		}
	}
	_ = p.w.Close()
	close(p.closeCh)
}

func (p *KafkaPublisher) publish(eventType string, orderID int64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.WithError(err).Error("marshal event payload")
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "grocery-api",
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.log.WithError(err).Error("marshal event envelope")
		return
	}

	// partition key = order_id で1注文のイベント順序を保つ
	select {
	case p.inbox <- kafka.Message{Key: []byte(env.CorrelationID), Value: value, Time: time.Now()}:
	default:
		p.log.WithField("event_type", eventType).Warn("event inbox full, dropping")
	}
}

func (p *KafkaPublisher) OrderCreated(payload OrderCreatedPayload) {
	p.publish(EventOrderCreated, payload.OrderID, payload)
}

func (p *KafkaPublisher) OrderStatusChanged(payload OrderStatusChangedPayload) {
	p.publish(EventOrderStatusChanged, payload.OrderID, payload)
}

func (p *KafkaPublisher) Close() {
	close(p.inbox)
	<-p.closeCh
}
