// Package transport defines the byte-oriented duplex the meter core reads
// its wire frames from, plus a real serial adapter and an in-memory fake
// for tests.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ErrDelimiterNotFound describes a delimiter that never appeared before the
// deadline. The transports in this package do not return it: ReadUntil
// returns ctx.Err() when ctx is cancelled before delim appears.
var ErrDelimiterNotFound = errors.New("transport: delimiter not found before deadline")

// Transport is the collaborator boundary the meter core consumes: a
// byte-oriented duplex with a settable baud rate and explicit deadlines
// carried by ctx on every blocking call.
type Transport interface {
	// ReadUntil reads and returns bytes up to and including the first
	// occurrence of delim.
	ReadUntil(ctx context.Context, delim []byte) ([]byte, error)
	// ReadExact reads and returns exactly n bytes.
	ReadExact(ctx context.Context, n int) ([]byte, error)
	// Write writes buf and flushes it before returning.
	Write(ctx context.Context, buf []byte) error
	// SetBaudRate changes the transport's baud rate. Any buffered output
	// is flushed first.
	SetBaudRate(baud int) error
	// Close releases the underlying resource. Safe to call more than once.
	Close() error
}

// byteReader implements ReadUntil/ReadExact against any io.Reader,
// honoring ctx cancellation between individual byte reads. It is the
// building block both the real serial transport and the fake share.
type byteReader struct {
	r   io.Reader
	buf bytes.Buffer
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{r: r}
}

func (br *byteReader) readUntil(ctx context.Context, delim []byte) ([]byte, error) {
	var out []byte
	one := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(br.r, one); err != nil {
			return nil, err
		}
		out = append(out, one[0])
		if bytes.HasSuffix(out, delim) {
			return out, nil
		}
	}
}

func (br *byteReader) readExact(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(br.r, out); err != nil {
		return nil, err
	}
	return out, nil
}
