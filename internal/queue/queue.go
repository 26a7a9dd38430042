// Package queue moves sync and webhook work between the API, the scheduler and the workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/persistence"
)

const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// Queue is a named FIFO of jobs. Dequeue returns (nil, nil) when timeout passes without work.
type Queue interface {
	Enqueue(ctx context.Context, queueName string, job Job) error
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)
	Close() error
}

// PermanentError marks a job failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker parks the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// New selects the driver named by cfg.Queue.Driver.
func New(cfg *config.Config, rdb *persistence.Redis, logger *zap.Logger) (Queue, error) {
	switch cfg.Queue.Driver {
	case "", DriverRedis:
		if rdb == nil || rdb.Client == nil {
			return nil, errors.New("redis queue driver needs a redis client")
		}
		return NewRedisQueue(rdb.Client, rdb.Key("queue")), nil
	case DriverKafka:
		return NewKafkaQueue(cfg.Kafka, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
