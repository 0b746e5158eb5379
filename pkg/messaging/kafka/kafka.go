package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/scheduling-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
)

type Config struct {
	// Brokers is a comma separated host:port list.
	Brokers      string
	TopicPrefix  string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Broker writes messages to Kafka, one topic per message type, keyed by the
// message key so events of one appointment land on one partition.
type Broker struct {
	writer *kafka.Writer
	cb     *circuitbreaker.CircuitBreaker
	prefix string
}

func NewBroker(config Config) (*Broker, error) {
	brokers := SplitBrokers(config.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 50 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	return &Broker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           config.BatchTimeout,
			WriteTimeout:           config.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "kafka-broker",
			MaxFailures: 5,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
		}),
		prefix: config.TopicPrefix,
	}, nil
}

// Message converts msg into a kafka message with id and type headers.
func (b *Broker) Message(msg messaging.Message) kafka.Message {
	return kafka.Message{
		Topic: b.prefix + msg.Type,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.ID)},
			{Key: "event_type", Value: []byte(msg.Type)},
		},
	}
}

func (b *Broker) Publish(ctx context.Context, msg messaging.Message) error {
	return b.cb.Execute(func() error {
		return b.writer.WriteMessages(ctx, b.Message(msg))
	})
}

func (b *Broker) Close() error {
	return b.writer.Close()
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			brokers = append(brokers, s)
		}
	}
	return brokers
}
