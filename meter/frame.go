package meter

import (
	"context"
	"time"
)

// initiatorDrainTimeout bounds how long ReadFrame waits for kind's
// initiator byte(s) to appear, independently of the caller's deadline. If
// it elapses first, ReadFrame proceeds straight to the terminator read
// rather than failing, tolerating line noise ahead of the initiator. A
// var, not a const, so tests can shrink it instead of waiting out 30s.
var initiatorDrainTimeout = 30 * time.Second

// FrameReader is the minimal read side of a transport.Transport, expressed
// structurally so this package never imports the transport package: any
// type with these two methods satisfies it.
type FrameReader interface {
	ReadUntil(ctx context.Context, delim []byte) ([]byte, error)
	ReadExact(ctx context.Context, n int) ([]byte, error)
}

// ReadFrame reads one complete wire frame of kind from r: it drains up to
// and including kind's initiator byte(s) if it has one, reads through
// kind's terminator, then reads any trailing fixed-width bytes (the data
// message's block check character).
func ReadFrame(ctx context.Context, r FrameReader, kind MessageKind) ([]byte, error) {
	var frame []byte

	if initiator := initiatorFor(kind); len(initiator) > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, initiatorDrainTimeout)
		_, err := r.ReadUntil(drainCtx, initiator)
		cancel()
		switch {
		case err == nil:
			// drop any line noise ahead of the initiator; the frame starts
			// at the initiator itself.
			frame = append(frame, initiator...)
		case drainCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			// initiator never showed up within the drain deadline; proceed
			// to the terminator read anyway.
		default:
			return nil, err
		}
	}

	rest, err := r.ReadUntil(ctx, terminatorFor(kind))
	if err != nil {
		return nil, err
	}
	frame = append(frame, rest...)

	if n := extraBytesFor(kind); n > 0 {
		extra, err := r.ReadExact(ctx, n)
		if err != nil {
			return nil, err
		}
		frame = append(frame, extra...)
	}

	return frame, nil
}
