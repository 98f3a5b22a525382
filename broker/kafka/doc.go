// Package kafka implements the broker interfaces on segmentio/kafka-go.
//
// Publishing waits for the partition leader only (RequireOne) with a one
// second write timeout. Subscriptions either pin one partition from its
// first offset or join a consumer group.
package kafka
