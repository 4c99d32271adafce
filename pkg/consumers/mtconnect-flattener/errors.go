package mtconnectflattener

import "errors"

var (
	// ErrDocumentNotFound is returned by a DocumentStore when the reference names no document.
	ErrDocumentNotFound = errors.New("document not found")

	errEmptyReference      = errors.New("empty document reference")
	errReferenceEscapesDir = errors.New("document reference escapes the document directory")
	errNilObjectStore      = errors.New("object store is required")
	errNilJetStream        = errors.New("jetstream context is required")
	errNilDependency       = errors.New("processor requires a document store, flattener and both sinks")
	errServiceRunning      = errors.New("service already started")
)
