// Package pipeline connects chunked text to audible output: an
// orchestrator drives the synthesis engine chunk by chunk, a bounded
// stream buffer fans the ordered segments out, and playback and export
// consume them concurrently.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Segment is one chunk's synthesized audio. A failed or skipped segment
// carries no samples but still occupies its ordinal slot, so consumers
// never observe a gap in the index sequence.
type Segment struct {
	Index      int
	Samples    []int16
	SampleRate int
	Channels   int
	Status     Status
}

// NominalDuration is the playback time of the samples; zero for
// failed/skipped placeholders.
func (s Segment) NominalDuration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 || len(s.Samples) == 0 {
		return 0
	}
	frames := len(s.Samples) / s.Channels
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}

// Session scopes one synthesis run: its cancellation signal, progress
// counter and warning count are shared by the producer and both consumers.
type Session struct {
	ID          uuid.UUID
	TotalChunks int

	ctx    context.Context
	cancel context.CancelFunc

	current  atomic.Int64
	warnings atomic.Int64
}

func NewSession(parent context.Context, totalChunks int) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:          uuid.New(),
		TotalChunks: totalChunks,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Session) Context() context.Context { return s.ctx }

// Cancel requests prompt session teardown. The producer checks it before
// each synthesis call; consumers observe it on their next read.
func (s *Session) Cancel() { s.cancel() }

func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Advance records that the chunk at index has been synthesized.
func (s *Session) Advance(index int) {
	s.current.Store(int64(index))
}

// CurrentIndex is the most recently synthesized chunk index.
func (s *Session) CurrentIndex() int {
	return int(s.current.Load())
}

// AddWarning counts a chunk-local failure.
func (s *Session) AddWarning() { s.warnings.Add(1) }

// Warnings is the number of chunks that failed and were skipped over.
func (s *Session) Warnings() int {
	return int(s.warnings.Load())
}
