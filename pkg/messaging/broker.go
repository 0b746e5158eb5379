package messaging

import (
	"context"
	"sync"
)

// Message is one event handed to a broker. Type doubles as the topic or
// stream name; Key keeps events of one appointment in order where the
// broker partitions.
type Message struct {
	ID      string
	Type    string
	Key     string
	Payload []byte
}

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Recorder is an in-process Broker that keeps what it was given. Used when
// no broker is configured and in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Fail, when set, is returned by Publish instead of recording.
	Fail error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *Recorder) Close() error {
	return nil
}
