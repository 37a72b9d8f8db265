package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"featurepipe/internal/datasource"
)

var _ datasource.Source = (*Local)(nil)

var errIsDir = errors.New("is a directory")

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// Path returns the file the source reads.
func (l *Local) Path() string { return l.path }

// NewLocal returns a new Local data source bound to the provided filesystem
// path. The returned value is safe for concurrent use by multiple goroutines
// as long as the underlying path location is valid for concurrent reads.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading and returns an io.ReadCloser.
//
// Behavior:
//   - If the context is already canceled or its deadline exceeded at the time
//     of the call, Open returns the context error immediately without touching
//     the filesystem.
//   - Otherwise, Open attempts to open the underlying file, hints the kernel
//     that it will be read sequentially, and returns the *os.File as an
//     io.ReadCloser.
//   - A directory is rejected; os.Open would succeed on it and fail on Read.
//   - Any filesystem error is wrapped with the path for context, while still
//     permitting errors.Is/As checks by callers (e.g., errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", l.path, errIsDir)
	}
	adviseSequential(f)
	return f, nil
}
