package encoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const maskDelta = 0xa282ead8

// maskedCRC is the TFRecord checksum: a rotated CRC-32C plus a constant.
func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, castagnoli)
	return ((c >> 15) | (c << 17)) + maskDelta
}

// Writer appends TFRecord frames to a gzip stream:
//
//	uint64 length | uint32 masked crc of length | data | uint32 masked crc of data
//
// All integers are little endian.
type Writer struct {
	f   *os.File // nil when writing to a caller-owned stream
	gz  *gzip.Writer
	buf *bufio.Writer
	n   int64
}

// NewWriter writes compressed records to w. Close flushes the gzip stream but
// does not close w.
func NewWriter(w io.Writer) *Writer {
	gz, _ := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	return &Writer{gz: gz, buf: bufio.NewWriterSize(gz, 256<<10)}
}

// Create opens path for writing, truncating any previous file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("encoder: create %s: %w", path, err)
	}
	w := NewWriter(f)
	w.f = f
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(data []byte) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(hdr[8:], maskedCRC(hdr[:8]))
	var ftr [4]byte
	binary.LittleEndian.PutUint32(ftr[:], maskedCRC(data))

	if _, err := w.buf.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	if _, err := w.buf.Write(ftr[:]); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int64 { return w.n }

// Close flushes buffered records and closes the gzip stream and, for writers
// made by Create, the file.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	if cerr := w.gz.Close(); err == nil {
		err = cerr
	}
	if w.f != nil {
		if serr := w.f.Sync(); err == nil {
			err = serr
		}
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ErrCorrupt reports a frame whose checksum does not match.
var ErrCorrupt = errors.New("encoder: corrupt record")

// Reader reads frames written by Writer.
type Reader struct {
	gz *gzip.Reader
	r  *bufio.Reader
}

// NewReader reads compressed records from r.
func NewReader(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("encoder: gzip: %w", err)
	}
	return &Reader{gz: gz, r: bufio.NewReader(gz)}, nil
}

// Next returns the next record or io.EOF.
func (r *Reader) Next() ([]byte, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrCorrupt
		}
		return nil, err
	}
	if binary.LittleEndian.Uint32(hdr[8:]) != maskedCRC(hdr[:8]) {
		return nil, ErrCorrupt
	}
	n := binary.LittleEndian.Uint64(hdr[:8])
	if n > 1<<30 {
		return nil, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}
	data := make([]byte, n+4)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return nil, ErrCorrupt
	}
	if binary.LittleEndian.Uint32(data[n:]) != maskedCRC(data[:n]) {
		return nil, ErrCorrupt
	}
	return data[:n], nil
}

// Close releases the gzip reader.
func (r *Reader) Close() error { return r.gz.Close() }
