package mtconnectflattener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
	"github.com/carverauto/mtconnect-flattener/pkg/models"
	"github.com/carverauto/mtconnect-flattener/pkg/mtconnect"
)

const tracerName = "github.com/carverauto/mtconnect-flattener/pkg/consumers/mtconnect-flattener"

// OutcomeKind classifies a handled document.
type OutcomeKind int

const (
	// OutcomeNoData means the document was empty; nothing was emitted.
	OutcomeNoData OutcomeKind = iota + 1
	// OutcomeParseFailed means the document could not be parsed; nothing was emitted.
	OutcomeParseFailed
	// OutcomeCompleted means every flattened record was accepted by its sink.
	OutcomeCompleted
)

const outcomeError = "error"

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoData:
		return "no_data"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome describes how one document was handled. Events and Samples count
// records the sinks accepted, including on a partial failure.
type Outcome struct {
	Kind    OutcomeKind
	Reason  error
	Events  int
	Samples int
}

// ProcessorOptions wires a Processor.
type ProcessorOptions struct {
	Store      DocumentStore
	Flattener  *mtconnect.Flattener
	Emitter    *Emitter
	EventSink  RecordSink
	SampleSink RecordSink
	Metrics    *Metrics
	Logger     logger.Logger
}

// Processor turns one document reference into published event and sample records.
type Processor struct {
	store      DocumentStore
	flattener  *mtconnect.Flattener
	emitter    *Emitter
	eventSink  RecordSink
	sampleSink RecordSink
	metrics    *Metrics
	logger     logger.Logger
	tracer     trace.Tracer
}

// NewProcessor creates a processor. A nil Emitter defaults to sequential emission.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if opts.Store == nil || opts.Flattener == nil || opts.EventSink == nil || opts.SampleSink == nil {
		return nil, errNilDependency
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	emitter := opts.Emitter
	if emitter == nil {
		emitter = NewEmitter(1, opts.Metrics, log)
	}

	return &Processor{
		store:      opts.Store,
		flattener:  opts.Flattener,
		emitter:    emitter,
		eventSink:  opts.EventSink,
		sampleSink: opts.SampleSink,
		metrics:    opts.Metrics,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Process reads the referenced document, flattens it and emits events, then
// samples. Empty and unparsable documents are reported through the Outcome
// with a nil error. Read and emit failures are returned as errors; records
// accepted before the failure stay published.
func (p *Processor) Process(ctx context.Context, ref string) (Outcome, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "ProcessDocument",
		trace.WithAttributes(attribute.String("document_ref", ref)))
	defer span.End()

	outcome, err := p.process(ctx, ref)

	span.SetAttributes(
		attribute.Int("events", outcome.Events),
		attribute.Int("samples", outcome.Samples),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.documentFailed(time.Since(start))

		return outcome, err
	}

	span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
	span.SetStatus(codes.Ok, "")
	p.metrics.documentProcessed(outcome.Kind, time.Since(start))

	return outcome, nil
}

func (p *Processor) process(ctx context.Context, ref string) (Outcome, error) {
	raw, err := p.store.ReadDocument(ctx, ref)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to read document %s: %w", ref, err)
	}

	doc, err := mtconnect.Parse(raw)
	if errors.Is(err, mtconnect.ErrNoData) {
		p.logger.Info().Str("document_ref", ref).Msg("Document has no content")

		return Outcome{Kind: OutcomeNoData}, nil
	}

	if err != nil {
		p.logger.Error().Err(err).Str("document_ref", ref).Msg("Failed to parse document")

		return Outcome{Kind: OutcomeParseFailed, Reason: err}, nil
	}

	var outcome Outcome

	events := p.flattener.FlattenEvents(doc)
	p.logger.Info().Str("document_ref", ref).Int("events", len(events)).Msgf("%d events found", len(events))

	outcome.Events, err = p.emitter.Emit(ctx, models.RecordKindEvent, Records(events), p.eventSink)
	if err != nil {
		return outcome, err
	}

	samples := p.flattener.FlattenSamples(doc)
	p.logger.Info().Str("document_ref", ref).Int("samples", len(samples)).Msgf("%d samples found", len(samples))

	outcome.Samples, err = p.emitter.Emit(ctx, models.RecordKindSample, Records(samples), p.sampleSink)
	if err != nil {
		return outcome, err
	}

	outcome.Kind = OutcomeCompleted

	return outcome, nil
}
