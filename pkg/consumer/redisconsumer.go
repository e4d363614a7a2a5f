package consumer

import (
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

type RedisConsumer struct {
	QueueName string

	NumberConsumers int
	BatchSize       int

	Timeout time.Duration

	Consumer rmq.BatchConsumer
}

// Setup opens the queue on connection and attaches NumberConsumers batch consumers.
func (c *RedisConsumer) Setup(connection rmq.Connection) (rmq.Queue, error) {
	log.Info().Str("queue", c.QueueName).Int("consumers", c.NumberConsumers).Msg("Starting consumers")

	queue, err := connection.OpenQueue(c.QueueName)
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", c.QueueName, err)
	}
	if err := queue.StartConsuming(int64(c.NumberConsumers*c.BatchSize), 1*time.Second); err != nil {
		return nil, fmt.Errorf("start consuming %s: %w", c.QueueName, err)
	}

	for i := 0; i < c.NumberConsumers; i++ {
		tag := fmt.Sprintf("%s-%d", c.QueueName, i)
		if _, err := queue.AddBatchConsumer(tag, int64(c.BatchSize), c.Timeout, c.Consumer); err != nil {
			return nil, fmt.Errorf("add consumer %s: %w", tag, err)
		}
	}

	return queue, nil
}
