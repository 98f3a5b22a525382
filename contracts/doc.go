// Package contracts provides the message type that flows through both
// directions of the bridge.
//
// Every Message carries a payload that is valid UTF-8 and parseable as JSON:
// payloads that are not JSON already are re-encoded as a JSON string literal
// by NormalizePayload, so consumers on either side can always JSON-decode
// what they receive.
package contracts
