package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cunicopia-dev/local-tts-studio/internal/synth"
	"github.com/cunicopia-dev/local-tts-studio/internal/text"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// funcEngine lets a test script synthesis behavior per call.
type funcEngine struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int, text string) (synth.Audio, error)
}

func (f *funcEngine) Synthesize(ctx context.Context, text string, _ *voice.Profile) (synth.Audio, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call, text)
}

func (f *funcEngine) Name() string { return "test" }
func (f *funcEngine) Close() error { return nil }

func makeChunks(n int) []text.Chunk {
	chunks := make([]text.Chunk, n)
	for i := range chunks {
		chunks[i] = text.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}
	return chunks
}

func drain(t *testing.T, r *Reader) ([]Segment, error) {
	t.Helper()
	var segs []Segment
	for {
		seg, err := r.Next(context.Background())
		if err != nil {
			return segs, err
		}
		segs = append(segs, seg)
	}
}

func TestRunDeliversAllSegmentsInOrder(t *testing.T) {
	engine := synth.NewMockEngine(8000, 1)
	engine.PerWord = 80

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 3)
	o := NewOrchestrator(engine, b, nil)

	if err := o.Run(session, makeChunks(3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	segs, err := drain(t, r)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("stream end: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	for i, seg := range segs {
		if seg.Index != i || seg.Status != StatusOK {
			t.Errorf("segment %d: index %d status %s", i, seg.Index, seg.Status)
		}
		if len(seg.Samples) == 0 {
			t.Errorf("segment %d has no audio", i)
		}
	}
	if session.Warnings() != 0 {
		t.Errorf("warnings: %d", session.Warnings())
	}
}

func TestRunSkipsFailedChunkAndContinues(t *testing.T) {
	engine := synth.NewMockEngine(8000, 1)
	engine.PerWord = 80
	engine.FailCalls = map[int]error{3: errors.New("model hiccup")}

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 5)
	o := NewOrchestrator(engine, b, nil)

	if err := o.Run(session, makeChunks(5)); err != nil {
		t.Fatalf("run: %v", err)
	}
	segs, err := drain(t, r)
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("stream end: %v", err)
	}

	want := []Status{StatusOK, StatusOK, StatusFailed, StatusOK, StatusOK}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments, want %d", len(segs), len(want))
	}
	for i, seg := range segs {
		if seg.Index != i {
			t.Errorf("segment %d: index %d", i, seg.Index)
		}
		if seg.Status != want[i] {
			t.Errorf("segment %d: status %s, want %s", i, seg.Status, want[i])
		}
	}
	if len(segs[2].Samples) != 0 {
		t.Error("failed segment carries samples")
	}
	if session.Warnings() != 1 {
		t.Errorf("warnings: %d, want 1", session.Warnings())
	}
}

func TestRunAbortsOnFatalEngineError(t *testing.T) {
	engine := synth.NewMockEngine(8000, 1)
	engine.PerWord = 80
	engine.FailCalls = map[int]error{2: fmt.Errorf("process gone: %w", synth.ErrEngineUnavailable)}

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 5)
	o := NewOrchestrator(engine, b, nil)

	err := o.Run(session, makeChunks(5))
	if !errors.Is(err, synth.ErrEngineUnavailable) {
		t.Fatalf("run: got %v, want ErrEngineUnavailable", err)
	}

	segs, streamErr := drain(t, r)
	if len(segs) != 1 || segs[0].Index != 0 {
		t.Fatalf("got %d segments before abort, want 1", len(segs))
	}
	if !errors.Is(streamErr, synth.ErrEngineUnavailable) {
		t.Fatalf("stream error: %v", streamErr)
	}
}

func TestRunEscalatesConsecutiveFailures(t *testing.T) {
	engine := &funcEngine{fn: func(ctx context.Context, call int, _ string) (synth.Audio, error) {
		return synth.Audio{}, errors.New("always down")
	}}

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 6)
	o := NewOrchestrator(engine, b, nil)
	o.MaxConsecutiveFailures = 3

	err := o.Run(session, makeChunks(6))
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("run: got %v, want ErrTooManyFailures", err)
	}

	segs, streamErr := drain(t, r)
	if len(segs) != 3 {
		t.Fatalf("got %d placeholder segments, want 3", len(segs))
	}
	for _, seg := range segs {
		if seg.Status != StatusFailed {
			t.Errorf("segment %d: status %s", seg.Index, seg.Status)
		}
	}
	if !errors.Is(streamErr, ErrTooManyFailures) {
		t.Fatalf("stream error: %v", streamErr)
	}
}

func TestRunMarksEmptyAudioSkipped(t *testing.T) {
	engine := &funcEngine{fn: func(ctx context.Context, call int, _ string) (synth.Audio, error) {
		return synth.Audio{SampleRate: 8000, Channels: 1}, nil
	}}

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 1)
	o := NewOrchestrator(engine, b, nil)

	if err := o.Run(session, makeChunks(1)); err != nil {
		t.Fatalf("run: %v", err)
	}
	segs, _ := drain(t, r)
	if len(segs) != 1 || segs[0].Status != StatusSkipped {
		t.Fatalf("got %+v, want one skipped segment", segs)
	}
}

func TestRunStopsAtCancellation(t *testing.T) {
	engine := &funcEngine{fn: func(ctx context.Context, call int, _ string) (synth.Audio, error) {
		if call >= 4 {
			<-ctx.Done()
			return synth.Audio{}, ctx.Err()
		}
		return synth.Audio{Samples: make([]int16, 80), SampleRate: 8000, Channels: 1}, nil
	}}

	b := NewStreamBuffer(8)
	r := b.Register("export")
	session := NewSession(context.Background(), 5)
	o := NewOrchestrator(engine, b, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(session, makeChunks(5)) }()

	for i := 0; i < 3; i++ {
		seg, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if seg.Index != i {
			t.Fatalf("got index %d, want %d", seg.Index, i)
		}
	}
	session.Cancel()

	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after cancellation")
	}

	if _, err := r.Next(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("stream error: %v", err)
	}
	if !session.Cancelled() {
		t.Fatal("session should report cancelled")
	}
}
