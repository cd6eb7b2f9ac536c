// Package mq публикует события выполнения в RabbitMQ и читает их обратно.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchange событий и очереди наблюдателей
//   - publisher.go  — публикация сообщений, Notifier для history.Persister
//   - consumer.go   — потребление сообщений (flowstack events watch)
//
// Типы сообщений:
//   - flow.event — смена статуса выполнения flow
//   - node.event — смена статуса выполнения node
//
// Routing key события: "<kind>.<status>" в нижнем регистре,
// например "flow.failed" или "node.running".
package mq
