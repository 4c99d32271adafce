package mtconnectflattener

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// objectReader is the part of jetstream.ObjectStore the document store uses.
type objectReader interface {
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
}

// ObjectStoreDocuments reads documents from a JetStream object store bucket,
// using the document reference as the object name.
type ObjectStoreDocuments struct {
	store  objectReader
	bucket string
}

// NewObjectStoreDocuments wraps an opened object store bucket.
func NewObjectStoreDocuments(store jetstream.ObjectStore, bucket string) (*ObjectStoreDocuments, error) {
	if store == nil {
		return nil, errNilObjectStore
	}

	return &ObjectStoreDocuments{store: store, bucket: bucket}, nil
}

// ReadDocument implements DocumentStore.
func (d *ObjectStoreDocuments) ReadDocument(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, errEmptyReference
	}

	data, err := d.store.GetBytes(ctx, ref)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, d.bucket, ref)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", d.bucket, ref, err)
	}

	return data, nil
}

// FileDocuments reads documents from a local directory.
type FileDocuments struct {
	dir string
}

// NewFileDocuments serves references relative to dir.
func NewFileDocuments(dir string) *FileDocuments {
	return &FileDocuments{dir: dir}
}

// ReadDocument implements DocumentStore. References must stay inside the directory.
func (d *FileDocuments) ReadDocument(_ context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, errEmptyReference
	}

	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", errReferenceEscapesDir, ref)
	}

	path := filepath.Join(d.dir, clean)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}
