package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrEndOfStream marks the clean end of a segment stream: every segment of
// the session has been delivered.
var ErrEndOfStream = errors.New("end of segment stream")

// StreamBuffer is the bounded, ordered fan-out between the single producer
// and its consumers. Each registered consumer owns an independent queue of
// the configured capacity: the slowest consumer applies backpressure to
// the producer, but consumers never stall each other, so a paused playback
// does not block export and a slow encode does not block live audio.
type StreamBuffer struct {
	capacity int

	mu      sync.Mutex
	readers []*Reader
	next    int
	closed  bool
}

// Reader is one consumer's ordered view of the segment sequence.
type Reader struct {
	name string
	ch   chan Segment

	mu  sync.Mutex
	err error
}

func NewStreamBuffer(capacity int) *StreamBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &StreamBuffer{capacity: capacity}
}

// Register adds a consumer. All consumers must be registered before the
// first Publish so every reader sees the full sequence.
func (b *StreamBuffer) Register(name string) *Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Reader{name: name, ch: make(chan Segment, b.capacity)}
	b.readers = append(b.readers, r)
	return r
}

// Publish delivers the next segment to every consumer, blocking while a
// consumer's queue is full. Segments must arrive in strict index order;
// anything else is a structural bug in the producer.
func (b *StreamBuffer) Publish(ctx context.Context, seg Segment) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("publish on closed stream buffer")
	}
	if seg.Index != b.next {
		b.mu.Unlock()
		return fmt.Errorf("out-of-order segment: got %d, want %d", seg.Index, b.next)
	}
	b.next++
	readers := make([]*Reader, len(b.readers))
	copy(readers, b.readers)
	b.mu.Unlock()

	// Non-blocking pass first so a consumer with room is never held up by
	// a full sibling; then block on whichever queues are still full.
	pending := readers[:0]
	for _, r := range readers {
		select {
		case r.ch <- seg:
		default:
			pending = append(pending, r)
		}
	}
	for _, r := range pending {
		select {
		case r.ch <- seg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close ends the stream for every consumer. A nil err means the session
// completed; otherwise err is the fatal or cancellation condition readers
// will observe after draining their in-flight segments.
func (b *StreamBuffer) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, r := range b.readers {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.ch)
	}
}

// Next returns the reader's next segment in strictly increasing index
// order. When the stream ends it returns ErrEndOfStream after a clean
// close, or the producer's fatal/cancellation error otherwise.
func (r *Reader) Next(ctx context.Context) (Segment, error) {
	select {
	case seg, ok := <-r.ch:
		if !ok {
			return Segment{}, r.closeErr()
		}
		return seg, nil
	case <-ctx.Done():
		// Drain anything already queued before reporting cancellation so
		// no delivered segment is silently dropped mid-read.
		select {
		case seg, ok := <-r.ch:
			if !ok {
				return Segment{}, r.closeErr()
			}
			return seg, nil
		default:
			return Segment{}, ctx.Err()
		}
	}
}

func (r *Reader) closeErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return ErrEndOfStream
}

// Capacity reports the per-consumer queue bound.
func (b *StreamBuffer) Capacity() int { return b.capacity }
