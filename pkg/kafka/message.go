package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedMessage marks a payload that could not be decoded into the
// record type a handler expects. Consumers log such messages and leave them
// uncommitted.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a record pulled from a topic.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Handler consumes one message. A nil error means the message was fully
// handled and its offset may be committed.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// RecordHandler consumes one decoded record.
type RecordHandler[T any] interface {
	Handle(ctx context.Context, record T) error
}

// validator is implemented by records that can reject a decoded value whose
// shape is wrong even though the JSON itself was well formed.
type validator interface {
	Validate() error
}

// JSONHandler returns a Handler that decodes each message value into T and
// passes it to h. Decode failures are returned wrapped in
// ErrMalformedMessage without calling h.
func JSONHandler[T any](h RecordHandler[T]) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		record, err := DecodeJSON[T](msg.Value)
		if err != nil {
			return err
		}
		return h.Handle(ctx, record)
	})
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
// Empty and null payloads are rejected, as are records whose Validate method
// fails.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return result, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %w", ErrMalformedMessage, err)
	}
	if v, ok := any(&result).(validator); ok {
		if err := v.Validate(); err != nil {
			return result, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
	}
	return result, nil
}
