package transport

import (
	"bytes"
	"context"
	"sync"
)

var _ Transport = (*Fake)(nil)

// Fake is an in-memory Transport for driving the meter core against
// scripted byte sequences in tests, playing the role smacbase's TestLink
// plays for the NPI PHY.
type Fake struct {
	mu         sync.Mutex
	inbound    bytes.Buffer
	Written    [][]byte
	BaudRates  []int
	reader     *byteReader
	closed     bool
}

// NewFake returns a Fake transport whose read side starts pre-loaded with
// canned.
func NewFake(canned []byte) *Fake {
	f := &Fake{}
	f.inbound.Write(canned)
	f.reader = newByteReader(&f.inbound)
	return f
}

// Feed appends more bytes to the read side, as if the meter had sent
// another frame.
func (f *Fake) Feed(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound.Write(data)
}

func (f *Fake) ReadUntil(ctx context.Context, delim []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reader.readUntil(ctx, delim)
}

func (f *Fake) ReadExact(ctx context.Context, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reader.readExact(ctx, n)
}

func (f *Fake) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte{}, buf...)
	f.Written = append(f.Written, cp)
	return nil
}

func (f *Fake) SetBaudRate(baud int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BaudRates = append(f.BaudRates, baud)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
