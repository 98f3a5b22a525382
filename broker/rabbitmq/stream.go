package rabbitmq

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StreamName maps a topic and partition to a stream queue. Partitions
// follow super stream naming ("orders-2"); a negative partition is the
// topic itself.
func StreamName(topic string, partition int) string {
	if partition < 0 {
		return topic
	}
	return topic + "-" + strconv.Itoa(partition)
}

func declareStream(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-queue-type": "stream",
	})
	if err != nil {
		return &StreamError{Op: "declare", Stream: name, Err: err}
	}
	return nil
}
