// Package datasource abstracts where raw input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens one input for reading. The caller closes the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
