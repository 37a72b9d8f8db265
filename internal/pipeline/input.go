package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"featurepipe/internal/config"
	"featurepipe/internal/datasource"
	"featurepipe/internal/datasource/file"
	csvparser "featurepipe/internal/parser/csv"
	"featurepipe/internal/record"
)

// newSourceFn is a test seam; production reads local files.
var newSourceFn = func(path string) datasource.Source { return file.NewLocal(path) }

// line is one data row of one input file.
type line struct {
	path string
	seq  int64
	csvparser.Row
}

// decode runs d over l and names the file in any error.
func (l line) decode(d *csvparser.Decoder) (record.Raw, error) {
	r, err := d.DecodeFields(l.Line, l.Fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return r, nil
}

// scanInputs streams the data rows of every file named by input (see
// file.Resolve) in file order. header is called once with the first file's
// header, nil when has_header is false; later files must repeat it. emit
// receives rows numbered from 0 across all files. It returns the row count.
func scanInputs(ctx context.Context, input string, opt config.Options, header func([]string) error, emit func(line) error) (int64, error) {
	paths, err := file.Resolve(input)
	if err != nil {
		return 0, fmt.Errorf("resolve input: %w", err)
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("resolve input: %q matched no files", input)
	}

	var (
		seq   int64
		first []string
	)
	for i, p := range paths {
		n, err := scanFile(ctx, p, opt, seq, func(hdr []string) error {
			if i == 0 {
				first = slices.Clone(hdr)
				return header(hdr)
			}
			if !slices.Equal(hdr, first) {
				return fmt.Errorf("%s: header %v differs from %s", p, hdr, paths[0])
			}
			return nil
		}, emit)
		seq += n
		if err != nil {
			return seq, err
		}
	}
	return seq, nil
}

func scanFile(ctx context.Context, path string, opt config.Options, seq int64, header func([]string) error, emit func(line) error) (int64, error) {
	rc, err := newSourceFn(path).Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	rd, err := csvparser.NewReader(rc, opt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := header(rd.Header()); err != nil {
		return 0, err
	}

	var n int64
	for {
		if n&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		if err := emit(line{path: path, seq: seq + n, Row: row}); err != nil {
			return n, err
		}
		n++
	}
}

// send delivers v on ch unless ctx is done first.
func send[T any](ctx context.Context, ch chan T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
