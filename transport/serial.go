package transport

import (
	"context"
	"io"
	"sync"

	goserial "github.com/jacobsa/go-serial/serial"
)

// SerialOptions mirrors the fields of config.SerialConfig relevant to
// opening the port; kept separate from the config package to avoid this
// package depending on YAML parsing.
type SerialOptions struct {
	PortURL  string
	BaudRate int
	ByteSize int
	Parity   string // "N", "E", "O", "M", or "S"
	StopBits float64
}

func (o SerialOptions) toOpenOptions() goserial.OpenOptions {
	parity := goserial.PARITY_NONE
	switch o.Parity {
	case "E":
		parity = goserial.PARITY_EVEN
	case "O":
		parity = goserial.PARITY_ODD
	}

	stopBits := uint(1)
	if o.StopBits >= 2 {
		stopBits = 2
	}

	return goserial.OpenOptions{
		PortName:              o.PortURL,
		BaudRate:              uint(o.BaudRate),
		DataBits:              uint(o.ByteSize),
		StopBits:              stopBits,
		ParityMode:            parity,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	}
}

// SerialTransport is the real Transport backed by a physical or USB serial
// port, opened the way the smacbase PHY opens its NPI link.
type SerialTransport struct {
	mu      sync.Mutex
	opts    SerialOptions
	port    io.ReadWriteCloser
	reader  *byteReader
}

var _ Transport = (*SerialTransport)(nil)

// OpenSerial opens the serial port described by opts.
func OpenSerial(opts SerialOptions) (*SerialTransport, error) {
	port, err := goserial.Open(opts.toOpenOptions())
	if err != nil {
		return nil, err
	}
	return &SerialTransport{opts: opts, port: port, reader: newByteReader(port)}, nil
}

func (t *SerialTransport) ReadUntil(ctx context.Context, delim []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader.readUntil(ctx, delim)
}

func (t *SerialTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader.readExact(ctx, n)
}

func (t *SerialTransport) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.port.Write(buf)
	return err
}

// SetBaudRate reopens the port at the new baud rate. go-serial has no API
// to change the baud rate of an already-open port, so this closes and
// reopens it with every other option held constant.
func (t *SerialTransport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.Close(); err != nil {
		return err
	}
	t.opts.BaudRate = baud
	port, err := goserial.Open(t.opts.toOpenOptions())
	if err != nil {
		return err
	}
	t.port = port
	t.reader = newByteReader(port)
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}
