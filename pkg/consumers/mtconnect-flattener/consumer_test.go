package mtconnectflattener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
)

type fakePullConsumer struct {
	err     error
	batches [][]jetstream.Msg
	calls   int
	cancel  context.CancelFunc
}

func (f *fakePullConsumer) Fetch(int, ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.calls >= len(f.batches) {
		f.cancel()
		return &fakeMessageBatch{ch: closedChan(nil)}, nil
	}

	batch := f.batches[f.calls]
	f.calls++

	return &fakeMessageBatch{ch: closedChan(batch)}, nil
}

func closedChan(msgs []jetstream.Msg) chan jetstream.Msg {
	ch := make(chan jetstream.Msg, len(msgs))
	for _, m := range msgs {
		ch <- m
	}

	close(ch)

	return ch
}

type fakeMessageBatch struct {
	ch  chan jetstream.Msg
	err error
}

func (f *fakeMessageBatch) Messages() <-chan jetstream.Msg {
	return f.ch
}

func (f *fakeMessageBatch) Error() error {
	return f.err
}

// fakeMsg records how a message was settled.
type fakeMsg struct {
	jetstream.Msg

	data      string
	delivered uint64

	mu       sync.Mutex
	settled  string
	reason   string
	progress atomic.Int32
}

func (m *fakeMsg) InProgress() error {
	m.progress.Add(1)
	return nil
}

func (m *fakeMsg) Data() []byte    { return []byte(m.data) }
func (m *fakeMsg) Subject() string { return "mtconnect.streams" }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}

func (m *fakeMsg) Ack() error { return m.settle("ack", "") }
func (m *fakeMsg) Nak() error { return m.settle("nak", "") }

func (m *fakeMsg) TermWithReason(reason string) error { return m.settle("term", reason) }

func (m *fakeMsg) settle(how, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settled = how
	m.reason = reason

	return nil
}

type fakeProcessor struct {
	outcomes map[string]Outcome
	errs     map[string]error
	refs     []string
}

func (p *fakeProcessor) Process(_ context.Context, ref string) (Outcome, error) {
	p.refs = append(p.refs, ref)

	if err := p.errs[ref]; err != nil {
		return Outcome{}, err
	}

	return p.outcomes[ref], nil
}

func TestConsumerProcessMessagesReturnsFatalError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{
			name: "connection closed",
			err:  nats.ErrConnectionClosed,
		},
		{
			name: "no responders",
			err:  nats.ErrNoResponders,
		},
		{
			name: "consumer deleted",
			err:  jetstream.ErrConsumerDeleted,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			c := &Consumer{
				streamName:   "MTCONNECT",
				consumerName: "flattener",
				consumer:     &fakePullConsumer{err: tc.err},
				logger:       logger.NewTestLogger(),
			}

			err := c.ProcessMessages(ctx, &fakeProcessor{})
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestConsumerProcessMessagesStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Consumer{
		consumer: &fakePullConsumer{err: errors.New("transient")},
		logger:   logger.NewTestLogger(),
	}

	require.NoError(t, c.ProcessMessages(ctx, &fakeProcessor{}))
}

func TestConsumerSettlesByOutcome(t *testing.T) {
	t.Parallel()

	errTransient := errors.New("object store timeout")

	completed := &fakeMsg{data: "mill1.xml\n"}
	empty := &fakeMsg{data: "empty.xml"}
	broken := &fakeMsg{data: "broken.xml"}
	retry := &fakeMsg{data: "flaky.xml", delivered: 1}
	exhausted := &fakeMsg{data: "flaky.xml", delivered: 3}
	blank := &fakeMsg{data: "   "}

	proc := &fakeProcessor{
		outcomes: map[string]Outcome{
			"mill1.xml":  {Kind: OutcomeCompleted, Events: 2},
			"empty.xml":  {Kind: OutcomeNoData},
			"broken.xml": {Kind: OutcomeParseFailed, Reason: errors.New("unexpected EOF")},
		},
		errs: map[string]error{"flaky.xml": errTransient},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pull := &fakePullConsumer{
		batches: [][]jetstream.Msg{
			{completed, empty, broken},
			{retry, exhausted, blank},
		},
		cancel: cancel,
	}

	c := &Consumer{
		streamName:   "MTCONNECT",
		consumerName: "flattener",
		consumer:     pull,
		maxDeliver:   3,
		logger:       logger.NewTestLogger(),
	}

	require.NoError(t, c.ProcessMessages(ctx, proc))

	assert.Equal(t, []string{"mill1.xml", "empty.xml", "broken.xml", "flaky.xml", "flaky.xml"}, proc.refs)

	assert.Equal(t, "ack", completed.settled)
	assert.Equal(t, "ack", empty.settled)
	assert.Equal(t, "term", broken.settled)
	assert.Equal(t, "unexpected EOF", broken.reason)
	assert.Equal(t, "nak", retry.settled)
	assert.Equal(t, "term", exhausted.settled)
	assert.Equal(t, errTransient.Error(), exhausted.reason)
	assert.Equal(t, "term", blank.settled)
}

type slowProcessor struct {
	delay time.Duration
}

func (p *slowProcessor) Process(ctx context.Context, _ string) (Outcome, error) {
	if !sleepCtx(ctx, p.delay) {
		return Outcome{}, ctx.Err()
	}

	return Outcome{Kind: OutcomeCompleted, Events: 1}, nil
}

func TestConsumerReportsProgressWhileProcessing(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := &fakeMsg{data: "large.xml"}

	c := &Consumer{
		consumer:     &fakePullConsumer{batches: [][]jetstream.Msg{{msg}}, cancel: cancel},
		progressWait: 10 * time.Millisecond,
		logger:       logger.NewTestLogger(),
	}

	require.NoError(t, c.ProcessMessages(ctx, &slowProcessor{delay: 100 * time.Millisecond}))

	assert.Equal(t, "ack", msg.settled)
	assert.GreaterOrEqual(t, msg.progress.Load(), int32(3))

	settledProgress := msg.progress.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settledProgress, msg.progress.Load(), "progress reports stop once the document is settled")
}

func TestConsumerSkipsProgressForEmptyReference(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := &fakeMsg{data: "  "}

	c := &Consumer{
		consumer: &fakePullConsumer{batches: [][]jetstream.Msg{{msg}}, cancel: cancel},
		logger:   logger.NewTestLogger(),
	}

	require.NoError(t, c.ProcessMessages(ctx, &fakeProcessor{}))

	assert.Equal(t, "term", msg.settled)
	assert.Zero(t, msg.progress.Load())
}
