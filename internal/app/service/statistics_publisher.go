package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortener/internal/app/model"
)

// jetStreamPublisher is the part of nats.JetStreamContext the publisher uses.
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// StatisticsPublisher records statistics by publishing them to JetStream.
// StatisticsConsumer writes them to the database.
type StatisticsPublisher struct {
	js jetStreamPublisher
}

// NewStatisticsPublisher creates a JetStream backed StatisticsRecorder.
func NewStatisticsPublisher(js nats.JetStreamContext) *StatisticsPublisher {
	return &StatisticsPublisher{js: js}
}

// Record publishes stat and waits for the stream ack until ctx expires.
// Records are not retried, so a publish error means the event is lost.
func (p *StatisticsPublisher) Record(ctx context.Context, stat *model.LinkStatistic) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("encode link statistic: %w", err)
	}

	if _, err := p.js.Publish(model.StatisticsStreamSubject, data,
		nats.Context(ctx),
		nats.MsgId(uuid.NewString()),
	); err != nil {
		return fmt.Errorf("publish link statistic: %w", err)
	}
	return nil
}
