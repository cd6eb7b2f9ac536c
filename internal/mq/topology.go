package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Flowstack/internal/channel"
)

// Exchange — имя обменника.
type Exchange string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// ExchangeEvents — topic-обменник событий выполнения.
const ExchangeEvents Exchange = "flowstack.events"

// Шаблоны подписки.
const (
	PatternAll        RoutingKey = "#"
	PatternFlowEvents RoutingKey = "flow.*"
	PatternNodeEvents RoutingKey = "node.*"
	PatternFailures   RoutingKey = "*.failed"
)

// RoutingKeyFor возвращает ключ маршрутизации события: "<kind>.<status>".
func RoutingKeyFor(ev channel.Event) RoutingKey {
	return RoutingKey(strings.ToLower(string(ev.Kind)) + "." + strings.ToLower(ev.Status.String()))
}

// SetupTopology объявляет обменник событий.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(declareExchange)
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		amqp.ExchangeTopic,     // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// DeclareWatchQueue создаёт эксклюзивную временную очередь наблюдателя,
// привязанную к обменнику событий по шаблонам. Возвращает имя очереди.
func DeclareWatchQueue(conn *Connection, patterns ...RoutingKey) (string, error) {
	if len(patterns) == 0 {
		patterns = []RoutingKey{PatternAll}
	}

	var name string
	err := conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		q, err := ch.QueueDeclare(
			"",    // name (генерирует брокер)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare watch queue: %w", err)
		}

		for _, p := range patterns {
			if err := ch.QueueBind(q.Name, string(p), string(ExchangeEvents), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", q.Name, p, err)
			}
		}
		name = q.Name
		return nil
	})
	return name, err
}
