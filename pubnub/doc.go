// Package pubnub speaks the PubNub REST protocol over a raw, reconnecting
// TCP connection.
//
// A Publisher sends one GET per message and treats the end of the response
// header block as acceptance. A Subscriber long-polls a channel with the v2
// subscribe endpoint, tracking the timetoken across reconnects so no window
// is skipped.
//
//	sub, err := pubnub.NewSubscriber(ctx, "psdsn.pubnub.com:80", "orders", subKey)
//	if err != nil {
//		return err
//	}
//	for {
//		payload, err := sub.NextMessage(ctx)
//		if err != nil {
//			continue // already reconnected
//		}
//		handle(payload)
//	}
//
// Neither type is safe for concurrent use.
package pubnub
