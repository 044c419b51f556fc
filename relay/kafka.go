package relay

import (
	"context"
	"fmt"

	kafkaGo "github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka-go's Writer used by Kafka.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// Kafka publishes messages to Kafka topics through one shared writer.
type Kafka struct {
	writer KafkaWriter
	topics map[string]string
}

var _ Publisher = (*Kafka)(nil)

// NewKafkaWriter builds a writer that routes by message topic and
// partitions by key, waiting for all in-sync replicas.
func NewKafkaWriter(brokers []string) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Balancer:               &kafkaGo.Hash{},
		RequiredAcks:           kafkaGo.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafka creates a Kafka publisher. topics renames logical topics to
// broker topic names; topics missing from the map are used verbatim.
func NewKafka(writer KafkaWriter, topics map[string]string) *Kafka {
	return &Kafka{writer: writer, topics: topics}
}

func (k *Kafka) Publish(ctx context.Context, topic, key, message string) error {
	name := topic
	if mapped, ok := k.topics[topic]; ok && mapped != "" {
		name = mapped
	}
	err := k.writer.WriteMessages(ctx, kafkaGo.Message{
		Topic: name,
		Key:   []byte(key),
		Value: []byte(message),
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", name, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
