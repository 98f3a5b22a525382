// Package broker defines the log broker surface the bridge consumes.
//
// Drivers live in sub-packages: broker/kafka speaks to Kafka and
// broker/rabbitmq to RabbitMQ streams. Both yield contracts.Message values
// with normalized payloads.
package broker
