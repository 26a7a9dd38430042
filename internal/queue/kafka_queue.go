package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
)

// KafkaQueue maps each queue to a topic consumed by one consumer group.
type KafkaQueue struct {
	cfg    config.KafkaConfig
	logger *zap.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
}

// NewKafkaQueue builds a lazily-connecting kafka driver.
func NewKafkaQueue(cfg config.KafkaConfig, logger *zap.Logger) *KafkaQueue {
	return &KafkaQueue{
		cfg:     cfg,
		logger:  logger.Named("kafka"),
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
	}
}

// topicName maps a queue name to a legal topic, e.g. "webhooks:failed" to "webhooks.failed".
func topicName(queueName string) string {
	return strings.ReplaceAll(queueName, ":", ".")
}

func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(q.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	q.writers[topic] = w
	return w
}

func (q *KafkaQueue) reader(topic string) *kafka.Reader {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.readers[topic]; ok {
		return r
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		Topic:    topic,
		GroupID:  q.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	q.logger.Info("consumer group reader created", zap.String("topic", topic), zap.String("group_id", q.cfg.GroupID))
	q.readers[topic] = r
	return r
}

func (q *KafkaQueue) Enqueue(ctx context.Context, queueName string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(job.ID),
		Value: raw,
		Time:  time.Now(),
	}
	if err := q.writer(topicName(queueName)).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish job to %s: %w", queueName, err)
	}
	return nil
}

func (q *KafkaQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := q.reader(topicName(queueName)).ReadMessage(readCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return nil, fmt.Errorf("decode job at offset %d: %w", msg.Offset, err)
	}
	return &job, nil
}

func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for _, w := range q.writers {
		errs = append(errs, w.Close())
	}
	for _, r := range q.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
