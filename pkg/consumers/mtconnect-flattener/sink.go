package mtconnectflattener

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// publisher is the part of jetstream.JetStream the sink uses.
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamSink publishes each record to a JetStream subject and waits for
// the stream's acknowledgement.
type JetStreamSink struct {
	js      publisher
	subject string
	dedupe  bool
}

// NewJetStreamSink publishes to subject. With dedupe set, the record id is
// sent as the Nats-Msg-Id header so the stream drops repeated records inside
// its duplicate window.
func NewJetStreamSink(js jetstream.JetStream, subject string, dedupe bool) (*JetStreamSink, error) {
	if js == nil {
		return nil, errNilJetStream
	}

	return &JetStreamSink{js: js, subject: subject, dedupe: dedupe}, nil
}

// Name implements RecordSink.
func (s *JetStreamSink) Name() string {
	return s.subject
}

// Send implements RecordSink.
func (s *JetStreamSink) Send(ctx context.Context, id string, payload []byte) error {
	var opts []jetstream.PublishOpt
	if s.dedupe && id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	if _, err := s.js.Publish(ctx, s.subject, payload, opts...); err != nil {
		return fmt.Errorf("failed to publish record %s to %s: %w", id, s.subject, err)
	}

	return nil
}

// WriterSink writes newline-delimited records to an io.Writer. It is safe
// for concurrent use.
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

// NewWriterSink writes records to w under the given sink name.
func NewWriterSink(w io.Writer, name string) *WriterSink {
	return &WriterSink{w: w, name: name}
}

// Name implements RecordSink.
func (s *WriterSink) Name() string {
	return s.name
}

// Send implements RecordSink.
func (s *WriterSink) Send(ctx context.Context, id string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')

	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write record %s to %s: %w", id, s.name, err)
	}

	return nil
}
