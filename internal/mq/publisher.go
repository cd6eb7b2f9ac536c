package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeFlowEvent MessageType = "flow.event"
	MessageTypeNodeEvent MessageType = "node.event"
)

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventPayload — событие выполнения в сообщении.
// Снимок FlowContext не публикуется.
type EventPayload struct {
	FlowID          int64             `json:"flow_id"`
	FlowName        string            `json:"flow_name,omitempty"`
	FlowExecutionID uuid.UUID         `json:"flow_execution_id"`
	NodeExecutionID uuid.UUID         `json:"node_execution_id"`
	NodeID          string            `json:"node_id,omitempty"`
	NodeName        string            `json:"node_name,omitempty"`
	Status          domain.ExecStatus `json:"status"`
	Error           string            `json:"error,omitempty"`
	At              time.Time         `json:"at"`
}

// NewEventPayload строит payload из события канала.
func NewEventPayload(ev channel.Event) EventPayload {
	p := EventPayload{
		FlowID:          ev.FlowID,
		FlowName:        ev.FlowName,
		FlowExecutionID: ev.FlowExecutionID,
		Status:          ev.Status,
		Error:           ev.Error,
		At:              ev.At,
	}
	if ev.IsNode() && ev.Node != nil {
		p.NodeExecutionID = ev.NodeExecutionID
		p.NodeID = ev.Node.NodeID
		p.NodeName = ev.Node.Name
	}
	return p
}

// NewEventMessage строит сообщение для события канала.
func NewEventMessage(ev channel.Event) (*Message, error) {
	payload, err := json.Marshal(NewEventPayload(ev))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	msgType := MessageTypeFlowEvent
	if ev.IsNode() {
		msgType = MessageTypeNodeEvent
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// Notifier публикует записанные события выполнения.
// Реализует history.Notifier.
type Notifier struct {
	publisher *Publisher
	timeout   time.Duration
}

// NewNotifier создаёт Notifier поверх Publisher.
// timeout ограничивает одну публикацию; 0 — без ограничения.
func NewNotifier(publisher *Publisher, timeout time.Duration) *Notifier {
	return &Notifier{publisher: publisher, timeout: timeout}
}

// Notify публикует событие в ExchangeEvents.
func (n *Notifier) Notify(ctx context.Context, ev channel.Event) error {
	msg, err := NewEventMessage(ev)
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.publisher.Publish(ctx, ExchangeEvents, RoutingKeyFor(ev), msg)
}
