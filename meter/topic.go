package meter

import (
	"sync"

	"github.com/weltenwort/go-power-meter-monitor/obis"
)

// subscriberBufferSize is the per-subscriber ring buffer depth. A slow
// subscriber drops its oldest unread readout rather than block the
// publisher, mirroring the smacbase firehose's unbuffered fan-out but
// bounding the backlog a single laggard can build up.
const subscriberBufferSize = 16

// Topic is a single-producer, multi-consumer broadcast of successful
// meter readouts, already converted into typed OBIS data sets. It plays
// the role the smacbase LinkMgr's RxFirehose registry plays for radio
// frames: a mutex-guarded subscriber list the driver publishes into and
// callers drain independently.
type Topic struct {
	mu          sync.Mutex
	subscribers map[chan *obis.TypedDataBlock]struct{}
}

// NewTopic returns an empty topic ready to publish to.
func NewTopic() *Topic {
	return &Topic{subscribers: make(map[chan *obis.TypedDataBlock]struct{})}
}

// Subscribe registers a new consumer and returns its channel together with
// an unsubscribe function the caller must invoke once done reading,
// typically via defer.
func (t *Topic) Subscribe() (<-chan *obis.TypedDataBlock, func()) {
	ch := make(chan *obis.TypedDataBlock, subscriberBufferSize)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans block out to every current subscriber. A subscriber whose
// buffer is full has its oldest pending readout dropped to make room,
// rather than stalling the publisher.
func (t *Topic) Publish(block *obis.TypedDataBlock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ch := range t.subscribers {
		for {
			select {
			case ch <- block:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
