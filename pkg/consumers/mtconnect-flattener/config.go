package mtconnectflattener

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
	"github.com/carverauto/mtconnect-flattener/pkg/models"
	"github.com/carverauto/mtconnect-flattener/pkg/mtconnect"
)

var (
	ErrMissingNATSURL         = errors.New("nats_url is required")
	ErrMissingStreamName      = errors.New("stream_name is required")
	ErrMissingSubject         = errors.New("subject is required")
	ErrMissingConsumerName    = errors.New("consumer_name is required")
	ErrMissingDocumentBucket  = errors.New("document_bucket is required")
	ErrMissingOutputStream    = errors.New("output_stream is required")
	ErrMissingOutputSubjects  = errors.New("events_subject and samples_subject are required")
	ErrSharedOutputSubject    = errors.New("events_subject and samples_subject must differ")
	ErrOutputLoopsToTrigger   = errors.New("output subjects must differ from the trigger subject")
	ErrSharedStreamName       = errors.New("output_stream must differ from stream_name")
	ErrInvalidEmitConcurrency = errors.New("emit_concurrency must be at least 1")
	ErrInvalidMaxDeliver      = errors.New("max_deliver must be at least 1")
	ErrInvalidSecurityMode    = errors.New("security mode must be none or mtls")
)

const (
	defaultStreamName     = "MTCONNECT"
	defaultSubject        = "mtconnect.streams"
	defaultConsumerName   = "mtconnect-flattener"
	defaultDocumentBucket = "streams"
	defaultOutputStream   = "MTCONNECT_RECORDS"
	defaultEventsSubject  = "mtconnect.records.events"
	defaultSamplesSubject = "mtconnect.records.samples"
	defaultMaxDeliver     = 3
	defaultAckWait        = 30 * time.Second
)

// FlattenerConfig holds configuration for the MTConnect flattener consumer.
type FlattenerConfig struct {
	ListenAddr  string `json:"listen_addr"`
	MetricsAddr string `json:"metrics_addr"`
	NATSURL     string `json:"nats_url"`
	Domain      string `json:"domain"`

	// StreamName and Subject carry document references; each message payload
	// names an object in DocumentBucket.
	StreamName     string `json:"stream_name"`
	Subject        string `json:"subject"`
	ConsumerName   string `json:"consumer_name"`
	DocumentBucket string `json:"document_bucket"`
	MaxDeliver     int    `json:"max_deliver"`

	OutputStream   string `json:"output_stream"`
	EventsSubject  string `json:"events_subject"`
	SamplesSubject string `json:"samples_subject"`

	EmitConcurrency int    `json:"emit_concurrency"`
	Identity        string `json:"identity"`

	Security *models.SecurityConfig `json:"security"`
	Logging  *logger.Config         `json:"logging"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *FlattenerConfig) ApplyDefaults() {
	setDefault(&c.StreamName, defaultStreamName)
	setDefault(&c.Subject, defaultSubject)
	setDefault(&c.ConsumerName, defaultConsumerName)
	setDefault(&c.DocumentBucket, defaultDocumentBucket)
	setDefault(&c.OutputStream, defaultOutputStream)
	setDefault(&c.EventsSubject, defaultEventsSubject)
	setDefault(&c.SamplesSubject, defaultSamplesSubject)
	setDefault(&c.Identity, mtconnect.IdentityModeRandom)

	if c.EmitConcurrency == 0 {
		c.EmitConcurrency = 1
	}

	if c.MaxDeliver == 0 {
		c.MaxDeliver = defaultMaxDeliver
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks the configuration for required fields.
func (c *FlattenerConfig) Validate() error {
	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}

	if c.StreamName == "" {
		errs = append(errs, ErrMissingStreamName)
	}

	if c.Subject == "" {
		errs = append(errs, ErrMissingSubject)
	}

	if c.ConsumerName == "" {
		errs = append(errs, ErrMissingConsumerName)
	}

	if c.DocumentBucket == "" {
		errs = append(errs, ErrMissingDocumentBucket)
	}

	if c.OutputStream == "" {
		errs = append(errs, ErrMissingOutputStream)
	} else if c.OutputStream == c.StreamName {
		errs = append(errs, ErrSharedStreamName)
	}

	errs = append(errs, c.validateOutputSubjects()...)

	if c.EmitConcurrency < 1 {
		errs = append(errs, ErrInvalidEmitConcurrency)
	}

	if c.MaxDeliver < 1 {
		errs = append(errs, ErrInvalidMaxDeliver)
	}

	if _, err := mtconnect.IdentityFor(c.Identity); err != nil {
		errs = append(errs, err)
	}

	if c.Security != nil {
		switch c.Security.Mode {
		case "", models.SecurityModeNone, models.SecurityModeMTLS:
		default:
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.Security.Mode))
		}
	}

	return errors.Join(errs...)
}

func (c *FlattenerConfig) validateOutputSubjects() []error {
	if c.EventsSubject == "" || c.SamplesSubject == "" {
		return []error{ErrMissingOutputSubjects}
	}

	var errs []error

	if c.EventsSubject == c.SamplesSubject {
		errs = append(errs, ErrSharedOutputSubject)
	}

	if c.EventsSubject == c.Subject || c.SamplesSubject == c.Subject {
		errs = append(errs, ErrOutputLoopsToTrigger)
	}

	return errs
}

// Deterministic reports whether record ids are derived from item content.
func (c *FlattenerConfig) Deterministic() bool {
	return strings.EqualFold(strings.TrimSpace(c.Identity), mtconnect.IdentityModeDeterministic)
}
