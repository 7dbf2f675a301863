package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink receives flushed batches of audit events. A non-nil error tells
// the dispatcher delivery failed and the batch will be retried.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// NoOpSink drops audit events.
type NoOpSink struct{}

// Write describes the write operation and its observable behavior.
func (NoOpSink) Write(context.Context, []Event) error { return nil }

// ChannelSink fans events out into a buffered channel, one at a time.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink describes the newchannelsink operation and its observable behavior.
//
// NewChannelSink may return an error when input validation, dependency calls, or security checks fail.
// NewChannelSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Write describes the write operation and its observable behavior.
func (s *ChannelSink) Write(ctx context.Context, events []Event) error {
	for _, event := range events {
		select {
		case s.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Events describes the events operation and its observable behavior.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
//
// NewJSONWriterSink may return an error when input validation, dependency calls, or security checks fail.
// NewJSONWriterSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Write describes the write operation and its observable behavior.
func (s *JSONWriterSink) Write(ctx context.Context, events []Event) error {
	if s == nil || s.writer == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := s.writer.Write(data); err != nil {
			return err
		}
		if _, err := s.writer.Write([]byte("\n")); err != nil {
			return err
		}
	}
	return nil
}
