package mtconnectflattener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/mtconnect-flattener/pkg/lifecycle"
	"github.com/carverauto/mtconnect-flattener/pkg/logger"
	"github.com/carverauto/mtconnect-flattener/pkg/mtconnect"
	"github.com/carverauto/mtconnect-flattener/pkg/natsutil"
)

const (
	defaultRetryDelay = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type connectFunc func(ctx context.Context) (*nats.Conn, error)

// session is everything bound to one NATS connection.
type session struct {
	nc        *nats.Conn
	consumer  *Consumer
	processor *Processor
}

// Service implements lifecycle.Service for the MTConnect flattener.
type Service struct {
	cfg        *FlattenerConfig
	flattener  *mtconnect.Flattener
	metrics    *Metrics
	logger     logger.Logger
	connect    connectFunc
	retryDelay time.Duration
	fetchWait  time.Duration

	mu      sync.Mutex
	nc      *nats.Conn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewService validates cfg and prepares the service. Metrics may be nil.
func NewService(cfg *FlattenerConfig, metrics *Metrics, log logger.Logger) (*Service, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	identity, err := mtconnect.IdentityFor(cfg.Identity)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	svc := &Service{
		cfg:        cfg,
		flattener:  mtconnect.NewFlattener(identity),
		metrics:    metrics,
		logger:     log,
		retryDelay: defaultRetryDelay,
		fetchWait:  defaultPullExpiry,
	}

	svc.connect = func(ctx context.Context) (*nats.Conn, error) {
		return natsutil.ConnectWithSecurity(ctx, cfg.NATSURL, cfg.Security, log,
			nats.Name(cfg.ConsumerName))
	}

	return svc, nil
}

// Start connects to NATS and begins processing document references. A
// failure to set up the first session is returned; later failures are
// retried in the background.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errServiceRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	sess, err := s.open(runCtx)
	if err != nil {
		cancel()
		return err
	}

	s.nc = sess.nc
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run(runCtx, sess)
	}()

	s.logger.Info().
		Str("stream_name", s.cfg.StreamName).
		Str("consumer_name", s.cfg.ConsumerName).
		Str("document_bucket", s.cfg.DocumentBucket).
		Str("output_stream", s.cfg.OutputStream).
		Msg("MTConnect flattener started")

	return nil
}

// Stop cancels the fetch loop, closes the NATS connection and waits for the
// loop to exit.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.running = false
	s.cancel()

	if s.nc != nil {
		s.nc.Close()
	}

	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer to stop: %w", ctx.Err())
	}

	s.logger.Info().Msg("MTConnect flattener stopped")

	return nil
}

func (s *Service) run(ctx context.Context, sess *session) {
	for {
		err := sess.consumer.ProcessMessages(ctx, sess.processor)
		sess.nc.Close()

		if ctx.Err() != nil {
			return
		}

		s.logger.Error().Err(err).Dur("retry_delay", s.retryDelay).Msg("Consumer stopped, reconnecting")

		sess = s.reopen(ctx)
		if sess == nil {
			return
		}
	}
}

// reopen retries open until it succeeds or ctx is done, which returns nil.
func (s *Service) reopen(ctx context.Context) *session {
	for {
		if !sleepCtx(ctx, s.retryDelay) {
			return nil
		}

		sess, err := s.open(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to reconnect to NATS")
			continue
		}

		s.mu.Lock()

		if ctx.Err() != nil {
			s.mu.Unlock()
			sess.nc.Close()

			return nil
		}

		s.nc = sess.nc
		s.mu.Unlock()

		s.logger.Info().Msg("Reconnected to NATS")

		return sess
	}
}

// open connects and builds the streams, bucket, sinks and processor.
func (s *Service) open(ctx context.Context) (*session, error) {
	nc, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := s.bind(ctx, nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return sess, nil
}

func (s *Service) bind(ctx context.Context, nc *nats.Conn) (*session, error) {
	js, err := natsutil.NewJetStream(nc, s.cfg.Domain)
	if err != nil {
		return nil, err
	}

	if _, err = natsutil.EnsureStream(ctx, js, s.cfg.StreamName, []string{s.cfg.Subject}); err != nil {
		return nil, err
	}

	if _, err = natsutil.EnsureStream(ctx, js, s.cfg.OutputStream,
		[]string{s.cfg.EventsSubject, s.cfg.SamplesSubject}); err != nil {
		return nil, err
	}

	bucket, err := natsutil.EnsureObjectStore(ctx, js, s.cfg.DocumentBucket)
	if err != nil {
		return nil, err
	}

	docs, err := NewObjectStoreDocuments(bucket, s.cfg.DocumentBucket)
	if err != nil {
		return nil, err
	}

	eventSink, err := NewJetStreamSink(js, s.cfg.EventsSubject, s.cfg.Deterministic())
	if err != nil {
		return nil, err
	}

	sampleSink, err := NewJetStreamSink(js, s.cfg.SamplesSubject, s.cfg.Deterministic())
	if err != nil {
		return nil, err
	}

	proc, err := NewProcessor(ProcessorOptions{
		Store:      docs,
		Flattener:  s.flattener,
		Emitter:    NewEmitter(s.cfg.EmitConcurrency, s.metrics, s.logger),
		EventSink:  eventSink,
		SampleSink: sampleSink,
		Metrics:    s.metrics,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, err
	}

	consumer, err := NewConsumer(ctx, js, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}

	consumer.fetchWait = s.fetchWait

	return &session{nc: nc, consumer: consumer, processor: proc}, nil
}

func (s *Service) currentConn() *nats.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nc
}

var _ lifecycle.Service = (*Service)(nil)
