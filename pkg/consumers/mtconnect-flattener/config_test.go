package mtconnectflattener

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
	"github.com/carverauto/mtconnect-flattener/pkg/mtconnect"
)

func validConfig() *FlattenerConfig {
	cfg := &FlattenerConfig{NATSURL: "nats://localhost:4222"}
	cfg.ApplyDefaults()

	return cfg
}

func TestFlattenerConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()

	assert.Equal(t, "MTCONNECT", cfg.StreamName)
	assert.Equal(t, "mtconnect.streams", cfg.Subject)
	assert.Equal(t, "mtconnect-flattener", cfg.ConsumerName)
	assert.Equal(t, "streams", cfg.DocumentBucket)
	assert.Equal(t, "MTCONNECT_RECORDS", cfg.OutputStream)
	assert.Equal(t, "mtconnect.records.events", cfg.EventsSubject)
	assert.Equal(t, "mtconnect.records.samples", cfg.SamplesSubject)
	assert.Equal(t, 1, cfg.EmitConcurrency)
	assert.Equal(t, 3, cfg.MaxDeliver)
	assert.Equal(t, mtconnect.IdentityModeRandom, cfg.Identity)
	assert.False(t, cfg.Deterministic())
	require.NoError(t, cfg.Validate())
}

func TestFlattenerConfigFromJSON(t *testing.T) {
	t.Parallel()

	var cfg FlattenerConfig
	require.NoError(t, json.Unmarshal([]byte(`{
		"listen_addr": ":50070",
		"metrics_addr": ":9470",
		"nats_url": "nats://nats:4222",
		"stream_name": "SHOPFLOOR",
		"subject": "shopfloor.documents",
		"emit_concurrency": 8,
		"identity": "deterministic",
		"security": {"mode": "mtls", "cert_dir": "/certs"},
		"logging": {"level": "debug"}
	}`), &cfg))

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "SHOPFLOOR", cfg.StreamName)
	assert.Equal(t, "shopfloor.documents", cfg.Subject)
	assert.Equal(t, "streams", cfg.DocumentBucket)
	assert.Equal(t, 8, cfg.EmitConcurrency)
	assert.True(t, cfg.Deterministic())
	assert.Equal(t, models.SecurityModeMTLS, cfg.Security.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFlattenerConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*FlattenerConfig)
		want   []error
	}{
		{
			name:   "missing nats url",
			mutate: func(c *FlattenerConfig) { c.NATSURL = "" },
			want:   []error{ErrMissingNATSURL},
		},
		{
			name: "missing names",
			mutate: func(c *FlattenerConfig) {
				c.StreamName, c.Subject, c.ConsumerName, c.DocumentBucket, c.OutputStream = "", "", "", "", ""
			},
			want: []error{
				ErrMissingStreamName, ErrMissingSubject, ErrMissingConsumerName,
				ErrMissingDocumentBucket, ErrMissingOutputStream,
			},
		},
		{
			name:   "missing output subject",
			mutate: func(c *FlattenerConfig) { c.SamplesSubject = "" },
			want:   []error{ErrMissingOutputSubjects},
		},
		{
			name:   "shared output subject",
			mutate: func(c *FlattenerConfig) { c.SamplesSubject = c.EventsSubject },
			want:   []error{ErrSharedOutputSubject},
		},
		{
			name:   "output loops to trigger",
			mutate: func(c *FlattenerConfig) { c.EventsSubject = c.Subject },
			want:   []error{ErrOutputLoopsToTrigger},
		},
		{
			name:   "shared stream",
			mutate: func(c *FlattenerConfig) { c.OutputStream = c.StreamName },
			want:   []error{ErrSharedStreamName},
		},
		{
			name:   "bad numbers",
			mutate: func(c *FlattenerConfig) { c.EmitConcurrency, c.MaxDeliver = -1, -1 },
			want:   []error{ErrInvalidEmitConcurrency, ErrInvalidMaxDeliver},
		},
		{
			name:   "unknown identity",
			mutate: func(c *FlattenerConfig) { c.Identity = "sequential" },
			want:   []error{mtconnect.ErrUnknownIdentityMode},
		},
		{
			name:   "unknown security mode",
			mutate: func(c *FlattenerConfig) { c.Security = &models.SecurityConfig{Mode: "spiffe"} },
			want:   []error{ErrInvalidSecurityMode},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			for _, want := range tc.want {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
