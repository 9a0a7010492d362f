package crawler

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// countingReader tracks compressed bytes consumed so progress can be shown
// against the archive size.
type countingReader struct {
	r    io.Reader
	read atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read.Add(int64(n))
	return n, err
}

// Stream is a decompressed view over one compressed archive body.
type Stream struct {
	gz    *gzip.Reader
	count *countingReader
	body  io.Closer
	size  int64
}

// NewStream wraps a gzip body. size is the compressed length, or -1 if unknown.
// Concatenated gzip members are read as one stream.
func NewStream(body io.ReadCloser, size int64) (*Stream, error) {
	count := &countingReader{r: body}
	gz, err := gzip.NewReader(count)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	return &Stream{gz: gz, count: count, body: body, size: size}, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.gz.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = fmt.Errorf("decompress: %w", err)
	}
	return n, err
}

// Position reports compressed bytes read so far and the total, or -1 when unknown.
func (s *Stream) Position() (read, total int64) {
	return s.count.read.Load(), s.size
}

// Close releases the decompressor and the underlying body.
func (s *Stream) Close() error {
	gzErr := s.gz.Close()
	bodyErr := s.body.Close()
	return errors.Join(gzErr, bodyErr)
}
