package ingest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stanstork/beacon/internal/config"
	"github.com/stanstork/beacon/internal/repository"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes JSON events from a topic with at-least-once semantics:
// an offset is committed only after the pipeline accepted the event, or after
// the event was found to be unprocessable.
type KafkaSource struct {
	reader       messageReader
	topic        string
	retryBackoff time.Duration
	maxBackoff   time.Duration
	logger       zerolog.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, logger zerolog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic cannot be empty")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return newKafkaSource(reader, cfg.Topic, logger), nil
}

func newKafkaSource(reader messageReader, topic string, logger zerolog.Logger) *KafkaSource {
	return &KafkaSource{
		reader:       reader,
		topic:        topic,
		retryBackoff: time.Second,
		maxBackoff:   30 * time.Second,
		logger:       logger.With().Str("component", "kafka-source").Str("topic", topic).Logger(),
	}
}

func (s *KafkaSource) Name() string { return "kafka:" + s.topic }

func (s *KafkaSource) Run(ctx context.Context, handle Handler) error {
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.logger.Error().Err(err).Msg("error closing kafka reader")
		}
	}()
	s.logger.Info().Msg("kafka ingest started")

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("kafka ingest stopped")
				return nil
			}
			s.logger.Warn().Err(err).Msg("kafka fetch error")
			if !sleep(ctx, s.retryBackoff) {
				return nil
			}
			continue
		}

		if !s.process(ctx, msg, handle) {
			return nil
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

// process hands one message to the pipeline, retrying store outages until the
// handler succeeds. It returns false when ctx ends before that happens.
func (s *KafkaSource) process(ctx context.Context, msg kafka.Message, handle Handler) bool {
	log := s.logger.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	evt, err := DecodeEvent(msg.Value)
	if err != nil {
		log.Warn().Err(err).Msg("skipping malformed event")
		return true
	}

	backoff := s.retryBackoff
	for {
		err := handle(ctx, evt)
		if err == nil {
			return true
		}
		if !repository.IsRetryable(err) {
			log.Error().Err(err).Str("event_type", evt.Type).Msg("event failed, skipping")
			return true
		}
		log.Warn().Err(err).Str("event_type", evt.Type).Dur("retry_in", backoff).Msg("store unavailable, retrying event")
		if !sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
