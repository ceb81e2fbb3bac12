package natsclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/shortener/config"
	"github.com/sifan077/shortener/internal/app/model"
)

const defaultConnectTimeout = 5 * time.Second

// Connect creates a NATS connection (with JetStream available) using application config.
func Connect(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("shortener"),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// EnsureStatisticsStream creates the statistics stream and its durable consumer when missing.
func EnsureStatisticsStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(model.StatisticsStreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("nats: stream info: %w", err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     model.StatisticsStreamName,
			Subjects: []string{model.StatisticsStreamSubject},
			MaxBytes: model.StatisticsStreamMaxBytes,
			Storage:  nats.FileStorage,
		}); err != nil {
			return fmt.Errorf("nats: create stream: %w", err)
		}
	}

	if _, err := js.ConsumerInfo(model.StatisticsStreamName, model.StatisticsConsumerName); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return fmt.Errorf("nats: consumer info: %w", err)
		}
		if _, err := js.AddConsumer(model.StatisticsStreamName, &nats.ConsumerConfig{
			Durable:   model.StatisticsConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		}); err != nil {
			return fmt.Errorf("nats: create consumer: %w", err)
		}
	}

	return nil
}

// URL returns the nats:// address with local defaults.
func URL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
