package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

const (
	defaultKafkaBroker  = "localhost:9092"
	defaultKafkaTopic   = "match-changes"
	defaultKafkaGroupID = "pitchlog-aggregator"
	defaultWriteTimeout = 10 * time.Second
	defaultMaxBytes     = 10e6

	headerEventName = "event_name"
	headerVersion   = "version"
)

// ErrNoBrokers indicates a Kafka configuration without brokers.
var ErrNoBrokers = errors.New("at least one kafka broker is required")

// KafkaConfig holds the Kafka transport settings shared by publisher and consumer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	WriteTimeout time.Duration
}

// LoadKafkaConfig loads Kafka settings from environment variables.
func LoadKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("PITCHLOG_KAFKA_BROKERS", defaultKafkaBroker)),
		Topic:        config.GetEnvStr("PITCHLOG_KAFKA_TOPIC", defaultKafkaTopic),
		GroupID:      config.GetEnvStr("PITCHLOG_KAFKA_GROUP_ID", defaultKafkaGroupID),
		WriteTimeout: config.GetEnvDuration("PITCHLOG_KAFKA_WRITE_TIMEOUT", defaultWriteTimeout),
	}
}

// Validate checks that the configuration can reach a topic.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if c.Topic == "" {
		return errors.New("kafka topic cannot be empty")
	}

	return nil
}

// KafkaPublisher writes notifications to a Kafka topic keyed by match ID.
//
// The hash balancer maps every match to one partition, which keeps the
// notifications of a match in write order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           writeTimeout,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

// Publish writes notifications synchronously. It returns only after every
// message was acknowledged by the brokers, or with an error.
func (p *KafkaPublisher) Publish(ctx context.Context, notifications ...Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(notifications))

	for _, n := range notifications {
		value, err := Encode(n)
		if err != nil {
			return err
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(n.MatchID),
			Value: value,
			Time:  n.OccurredAt,
			Headers: []kafka.Header{
				{Key: headerEventName, Value: []byte(n.EventName)},
				{Key: headerVersion, Value: []byte(strconv.FormatInt(n.Version, 10))},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish %d notifications: %w", len(messages), err)
	}

	p.logger.Debug("Published change notifications",
		slog.String("topic", p.writer.Topic),
		slog.Int("count", len(messages)),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads notifications as a member of a consumer group.
//
// An offset is committed only after the handler acknowledged the message, so an
// unacknowledged notification is delivered again after a restart or rebalance.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer-group reader for cfg.Topic.
func NewKafkaConsumer(cfg KafkaConfig, logger *slog.Logger) (*KafkaConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	if cfg.GroupID == "" {
		return nil, errors.New("kafka consumer group id cannot be empty")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    defaultMaxBytes,
			StartOffset: kafka.FirstOffset,
		}),
		logger: logger,
	}, nil
}

// Run fetches messages and hands them to handler in partition order until ctx
// is done. Malformed payloads are logged and committed; they would never succeed.
func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to fetch change notification: %w", err)
		}

		n, err := Decode(msg.Value)
		if err != nil {
			c.logger.Error("Dropping malformed change notification",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		} else if !deliver(ctx, handler, n, c.logger) {
			// Context ended before the handler acknowledged; leave the offset uncommitted.
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to commit offset %d on partition %d: %w", msg.Offset, msg.Partition, err)
		}
	}
}

// Close leaves the consumer group and closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
