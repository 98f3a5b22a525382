package contracts

import (
	stdjson "encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Message is one unit relayed between the broker and the pub/sub service.
type Message struct {
	// ID is generated when the message enters the bridge. It is only used
	// to correlate log records.
	ID string `json:"id"`
	// Topic is the origin topic (broker side) or channel (pub/sub side).
	Topic string `json:"topic"`
	// Group is the consumer group the message was read with, if any.
	Group string `json:"group,omitempty"`
	// Payload is always valid UTF-8 JSON text.
	Payload string `json:"payload"`
}

// NewMessage creates a message with a fresh ID and a normalized payload.
func NewMessage(topic, group string, payload []byte) Message {
	return Message{
		ID:      uuid.New().String(),
		Topic:   topic,
		Group:   group,
		Payload: NormalizePayload(payload),
	}
}

// NormalizePayload returns data unchanged when it is already valid JSON and
// as a JSON string literal otherwise. Invalid UTF-8 sequences are replaced
// with U+FFFD first.
func NormalizePayload(data []byte) string {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	// goccy's Valid accepts near-JSON such as 01, 1. or tru, so validity is
	// decided by the strict RFC 8259 checker.
	if stdjson.Valid([]byte(text)) {
		return text
	}

	encoded, err := json.MarshalNoEscape(text)
	if err != nil {
		// unreachable for a valid UTF-8 string
		return `""`
	}
	return string(encoded)
}
