// Package bridge moves messages between a log broker and a pub/sub service.
//
// Four stages run concurrently:
//
//	broker-consume    broker subscription -> outbound queue
//	pubsub-publish    outbound queue      -> pub/sub publish   (retried until accepted)
//	pubsub-subscribe  pub/sub long-poll   -> inbound queue
//	broker-produce    inbound queue       -> broker publish    (dropped on failure)
//
// Each stage owns its clients and rebuilds them when they cannot be
// opened. The queues are unbounded, so an outage on one side only grows
// the backlog in front of it. Order is kept within a direction.
package bridge
