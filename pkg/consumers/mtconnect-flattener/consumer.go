package mtconnectflattener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
)

const (
	defaultMaxPullMessages = 10
	defaultPullExpiry      = 30 * time.Second
	defaultMaxAckPending   = 100
	fetchRetryDelay        = time.Second

	// progressInterval must stay below the consumer's ack wait.
	progressInterval = defaultAckWait / 3
)

// pullConsumer is the part of jetstream.Consumer the fetch loop uses.
type pullConsumer interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// documentProcessor handles one document reference.
type documentProcessor interface {
	Process(ctx context.Context, ref string) (Outcome, error)
}

// Consumer wraps a durable JetStream pull consumer whose messages carry
// document references.
type Consumer struct {
	streamName   string
	consumerName string
	consumer     pullConsumer
	maxDeliver   int
	fetchWait    time.Duration
	progressWait time.Duration
	logger       logger.Logger
}

// NewConsumer retrieves the durable consumer, creating it when it does not exist.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg *FlattenerConfig, log logger.Logger) (*Consumer, error) {
	log.Info().
		Str("stream_name", cfg.StreamName).
		Str("consumer_name", cfg.ConsumerName).
		Str("subject", cfg.Subject).
		Msg("Creating or getting pull consumer")

	consumer, err := js.Consumer(ctx, cfg.StreamName, cfg.ConsumerName)
	if err != nil {
		consumer, err = js.CreateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       defaultAckWait,
			MaxDeliver:    cfg.MaxDeliver,
			MaxAckPending: defaultMaxAckPending,
			FilterSubject: cfg.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer %s on %s: %w", cfg.ConsumerName, cfg.StreamName, err)
		}
	}

	return &Consumer{
		streamName:   cfg.StreamName,
		consumerName: cfg.ConsumerName,
		consumer:     consumer,
		maxDeliver:   cfg.MaxDeliver,
		fetchWait:    defaultPullExpiry,
		progressWait: progressInterval,
		logger:       log,
	}, nil
}

// ProcessMessages fetches and handles messages until ctx is done, which
// returns nil, or the connection fails, which returns the error.
func (c *Consumer) ProcessMessages(ctx context.Context, proc documentProcessor) error {
	c.logger.Info().
		Str("stream_name", c.streamName).
		Str("consumer_name", c.consumerName).
		Msg("Starting pull consumer")

	for {
		if ctx.Err() != nil {
			c.logger.Info().Msg("Stopping message processing due to context cancellation")
			return nil
		}

		msgs, err := c.consumer.Fetch(defaultMaxPullMessages, jetstream.FetchMaxWait(c.maxWait()))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if isFatalFetchError(err) {
				return fmt.Errorf("fetch from %s/%s: %w", c.streamName, c.consumerName, err)
			}

			c.logger.Warn().Err(err).Msg("Failed to fetch messages")

			if !sleepCtx(ctx, fetchRetryDelay) {
				return nil
			}

			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg, proc)
		}

		if fetchErr := msgs.Error(); fetchErr != nil {
			if ctx.Err() != nil {
				return nil
			}

			if isFatalFetchError(fetchErr) {
				return fmt.Errorf("fetch from %s/%s: %w", c.streamName, c.consumerName, fetchErr)
			}

			c.logger.Debug().Err(fetchErr).Msg("Fetch ended with error")
		}
	}
}

func (c *Consumer) maxWait() time.Duration {
	if c.fetchWait <= 0 {
		return defaultPullExpiry
	}

	return c.fetchWait
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg, proc documentProcessor) {
	ref := strings.TrimSpace(string(msg.Data()))
	if ref == "" {
		c.logger.Warn().Str("subject", msg.Subject()).Msg("Terminating message without a document reference")
		c.settle(msg.TermWithReason(errEmptyReference.Error()))

		return
	}

	stopProgress := c.reportProgress(ctx, msg)
	outcome, err := proc.Process(ctx, ref)
	stopProgress()

	if err != nil {
		c.retryOrTerminate(msg, ref, err)
		return
	}

	switch outcome.Kind {
	case OutcomeParseFailed:
		reason := "parse failed"
		if outcome.Reason != nil {
			reason = outcome.Reason.Error()
		}

		c.settle(msg.TermWithReason(reason))
	case OutcomeNoData, OutcomeCompleted:
		c.logger.Debug().
			Str("document_ref", ref).
			Str("outcome", outcome.Kind.String()).
			Int("events", outcome.Events).
			Int("samples", outcome.Samples).
			Msg("Document processed")
		c.settle(msg.Ack())
	default:
		c.settle(msg.Ack())
	}
}

// reportProgress marks msg in progress now and every progressWait until the
// returned func is called.
func (c *Consumer) reportProgress(ctx context.Context, msg jetstream.Msg) func() {
	c.settle(msg.InProgress())

	interval := c.progressWait
	if interval <= 0 {
		interval = progressInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.settle(msg.InProgress())
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *Consumer) retryOrTerminate(msg jetstream.Msg, ref string, err error) {
	delivered := uint64(0)

	if meta, metaErr := msg.Metadata(); metaErr == nil && meta != nil {
		delivered = meta.NumDelivered
	}

	if c.maxDeliver > 0 && delivered >= uint64(c.maxDeliver) {
		c.logger.Error().
			Err(err).
			Str("document_ref", ref).
			Uint64("delivered", delivered).
			Msg("Giving up on document after repeated failures")
		c.settle(msg.TermWithReason(err.Error()))

		return
	}

	c.logger.Warn().
		Err(err).
		Str("document_ref", ref).
		Uint64("delivered", delivered).
		Msg("Failed to process document, requesting redelivery")
	c.settle(msg.Nak())
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to settle message")
	}
}

func isFatalFetchError(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, jetstream.ErrConsumerDeleted) ||
		errors.Is(err, jetstream.ErrConsumerNotFound)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
