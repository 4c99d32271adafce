//go:generate mockgen -destination=mock_flattener.go -package=mtconnectflattener github.com/carverauto/mtconnect-flattener/pkg/consumers/mtconnect-flattener DocumentStore,RecordSink

package mtconnectflattener

import "context"

// DocumentStore resolves a document reference to the raw document bytes.
type DocumentStore interface {
	ReadDocument(ctx context.Context, ref string) ([]byte, error)
}

// RecordSink accepts one serialized record per call and returns once the
// destination has acknowledged it.
type RecordSink interface {
	Send(ctx context.Context, id string, payload []byte) error
	Name() string
}
