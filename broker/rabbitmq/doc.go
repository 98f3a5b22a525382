// Package rabbitmq implements the broker interfaces on RabbitMQ streams
// using amqp091-go.
//
// A stream is an append-only log, so it serves the same role as a Kafka
// partition: topic "orders" with partition 2 is the stream queue
// "orders-2", and a negative partition addresses "orders" directly.
// Consumers always start at the first offset.
package rabbitmq
