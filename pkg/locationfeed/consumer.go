// Package locationfeed feeds location samples published on a Redis queue into
// live sessions.
package locationfeed

import (
	"encoding/json"
	"errors"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/session"
)

const QueueName = "location-samples"

type Sink interface {
	UpdateLocation(sample session.LocationSample) (pacing.Evaluation, error)
}

type BatchConsumer struct {
	sink    Sink
	metrics *metrics.Collector
}

func NewBatchConsumer(sink Sink, collector *metrics.Collector) *BatchConsumer {
	return &BatchConsumer{sink: sink, metrics: collector}
}

func (c *BatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		var sample session.LocationSample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil || sample.Session == "" {
			c.metrics.LocationSample("malformed")
			log.Debug().Err(err).Str("payload", payload).Msg("Ignoring malformed location sample")
			continue
		}

		evaluation, err := c.sink.UpdateLocation(sample)
		if err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrSessionEnded) {
				log.Warn().Err(err).Str("session", sample.Session).Msg("Failed to apply location sample")
			}
			continue
		}

		log.Debug().
			Str("session", sample.Session).
			Str("outcome", string(evaluation.Outcome)).
			Str("direction", evaluation.Direction.String()).
			Msg("Applied location sample")
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack location samples")
		}
	}
}

// Publish puts a sample on the location queue.
func Publish(queue rmq.Queue, sample session.LocationSample) error {
	sampleBytes, err := json.Marshal(sample)
	if err != nil {
		return err
	}

	return queue.PublishBytes(sampleBytes)
}
