package mtconnectflattener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

// Record is a flattened record that can be emitted.
type Record interface {
	RecordID() string
}

// Records adapts a typed record slice for Emit.
func Records[T Record](items []T) []Record {
	out := make([]Record, len(items))
	for i := range items {
		out[i] = items[i]
	}

	return out
}

// FailedRecord identifies a record the sink did not accept.
type FailedRecord struct {
	Index int
	ID    string
	Err   error
}

// EmitError reports a partially emitted batch. Records counted in Submitted
// were acknowledged by the sink and are not withdrawn.
type EmitError struct {
	Kind      models.RecordKind
	Sink      string
	Submitted int
	Skipped   int
	Failed    []FailedRecord
}

func (e *EmitError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.ID
	}

	msg := fmt.Sprintf("emitting %s records to %s: %d submitted, %d failed [%s]",
		e.Kind, e.Sink, e.Submitted, len(e.Failed), strings.Join(ids, ", "))

	if e.Skipped > 0 {
		msg += fmt.Sprintf(", %d not attempted", e.Skipped)
	}

	if len(e.Failed) > 0 {
		msg += ": " + e.Failed[0].Err.Error()
	}

	return msg
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *EmitError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}

	return errs
}

// Emitter serializes records to JSON and submits them to a sink one at a time.
type Emitter struct {
	concurrency int
	metrics     *Metrics
	logger      logger.Logger
}

// NewEmitter returns an emitter. A concurrency of 1 or less sends strictly in
// order and stops at the first failure; larger values send up to that many
// records at once and attempt every record before returning.
func NewEmitter(concurrency int, metrics *Metrics, log logger.Logger) *Emitter {
	if concurrency < 1 {
		concurrency = 1
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Emitter{concurrency: concurrency, metrics: metrics, logger: log}
}

// Emit submits every record to sink and returns how many the sink accepted.
// On any failure the error is an *EmitError.
func (e *Emitter) Emit(ctx context.Context, kind models.RecordKind, records []Record, sink RecordSink) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	if e.concurrency == 1 || len(records) == 1 {
		return e.emitSequential(ctx, kind, records, sink)
	}

	return e.emitConcurrent(ctx, kind, records, sink)
}

func (e *Emitter) emitSequential(ctx context.Context, kind models.RecordKind, records []Record, sink RecordSink) (int, error) {
	for i, rec := range records {
		if err := e.send(ctx, kind, rec, sink); err != nil {
			return i, &EmitError{
				Kind:      kind,
				Sink:      sink.Name(),
				Submitted: i,
				Skipped:   len(records) - i - 1,
				Failed:    []FailedRecord{{Index: i, ID: rec.RecordID(), Err: err}},
			}
		}
	}

	return len(records), nil
}

func (e *Emitter) emitConcurrent(ctx context.Context, kind models.RecordKind, records []Record, sink RecordSink) (int, error) {
	var (
		mu     sync.Mutex
		failed []FailedRecord
		g      errgroup.Group
	)

	g.SetLimit(e.concurrency)

	for i, rec := range records {
		g.Go(func() error {
			if err := e.send(ctx, kind, rec, sink); err != nil {
				mu.Lock()
				failed = append(failed, FailedRecord{Index: i, ID: rec.RecordID(), Err: err})
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	submitted := len(records) - len(failed)
	if len(failed) == 0 {
		return submitted, nil
	}

	sort.Slice(failed, func(a, b int) bool { return failed[a].Index < failed[b].Index })

	return submitted, &EmitError{Kind: kind, Sink: sink.Name(), Submitted: submitted, Failed: failed}
}

func (e *Emitter) send(ctx context.Context, kind models.RecordKind, rec Record, sink RecordSink) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		e.metrics.emitFailed(kind)
		return fmt.Errorf("failed to marshal %s record %s: %w", kind, rec.RecordID(), err)
	}

	if err := sink.Send(ctx, rec.RecordID(), payload); err != nil {
		e.metrics.emitFailed(kind)

		if !errors.Is(err, context.Canceled) {
			e.logger.Warn().
				Err(err).
				Str("kind", string(kind)).
				Str("record_id", rec.RecordID()).
				Str("sink", sink.Name()).
				Msg("Failed to emit record")
		}

		return err
	}

	e.metrics.recordEmitted(kind)

	return nil
}
