package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSimulatedPlaybackTiming(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 3)

	// Three segments of 100ms each at 8kHz mono.
	for i := 0; i < 3; i++ {
		if err := b.Publish(context.Background(), okSegment(i, 800, 8000)); err != nil {
			t.Fatal(err)
		}
	}
	b.Close(nil)

	sink := audio.NewSimulatedSink()
	p := NewPlaybackController(sink, true)
	if err := p.Run(session, r); err != nil {
		t.Fatalf("run: %v", err)
	}

	if p.State() != StateStopped {
		t.Errorf("state: %s", p.State())
	}
	if p.NextIndex() != 3 {
		t.Errorf("next index: %d", p.NextIndex())
	}
	if p.Elapsed() != 300*time.Millisecond {
		t.Errorf("controller elapsed: %v", p.Elapsed())
	}
	if sink.Elapsed() != 300*time.Millisecond {
		t.Errorf("sink elapsed: %v", sink.Elapsed())
	}
}

func TestPlaybackPassesOverPlaceholders(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 3)

	if err := b.Publish(context.Background(), okSegment(0, 800, 8000)); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), Segment{Index: 1, Status: StatusFailed}); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), okSegment(2, 800, 8000)); err != nil {
		t.Fatal(err)
	}
	b.Close(nil)

	var mu sync.Mutex
	var order []int
	p := NewPlaybackController(audio.NewSimulatedSink(), true)
	p.Progress = func(seg Segment) {
		mu.Lock()
		order = append(order, seg.Index)
		mu.Unlock()
	}

	if err := p.Run(session, r); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Elapsed() != 200*time.Millisecond {
		t.Errorf("elapsed: %v, placeholder should add no time", p.Elapsed())
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("progress order: %v", order)
	}
}

func TestPauseResumeKeepsPosition(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 3)

	if err := b.Publish(context.Background(), okSegment(0, 80, 8000)); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	p := NewPlaybackController(audio.NewSimulatedSink(), true)
	p.Progress = func(seg Segment) {
		mu.Lock()
		order = append(order, seg.Index)
		mu.Unlock()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(session, r) }()

	waitFor(t, "first segment", func() bool { return p.NextIndex() == 1 })
	p.Pause()

	if err := b.Publish(context.Background(), okSegment(1, 80, 8000)); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), okSegment(2, 80, 8000)); err != nil {
		t.Fatal(err)
	}
	b.Close(nil)

	// A read already in flight when Pause landed may still complete, so the
	// position settles at 1 or 2; segment 2 is never consumed while paused.
	time.Sleep(100 * time.Millisecond)
	if n := p.NextIndex(); n > 2 {
		t.Fatalf("consumed past pause: next index %d", n)
	}
	if p.State() != StatePaused {
		t.Fatalf("state: %s", p.State())
	}

	p.Resume()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish after resume")
	}

	if p.NextIndex() != 3 {
		t.Errorf("next index: %d", p.NextIndex())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("segments skipped or repeated: %v", order)
	}
}

// brokenSink scripts device failures: Start can fail outright, or Play can
// start failing at a given call number.
type brokenSink struct {
	startErr  error
	playErrAt int

	mu    sync.Mutex
	plays int
}

func (s *brokenSink) Start(sampleRate, channels int) error { return s.startErr }

func (s *brokenSink) Play(ctx context.Context, samples []int16, nominal time.Duration) error {
	s.mu.Lock()
	s.plays++
	n := s.plays
	s.mu.Unlock()
	if s.playErrAt > 0 && n >= s.playErrAt {
		return errors.New("device gone")
	}
	return nil
}

func (s *brokenSink) Flush()       {}
func (s *brokenSink) Close() error { return nil }

func (s *brokenSink) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

// A dead output device must not stall the producer: the controller keeps
// draining its reader so the bounded queue never fills for good.
func TestDeadSinkKeepsDrainingReader(t *testing.T) {
	b := NewStreamBuffer(1)
	r := b.Register("playback")
	session := NewSession(context.Background(), 4)

	produced := make(chan error, 1)
	go func() {
		for i := 0; i < 4; i++ {
			if err := b.Publish(session.Context(), okSegment(i, 80, 8000)); err != nil {
				produced <- err
				return
			}
		}
		b.Close(nil)
		produced <- nil
	}()

	sink := &brokenSink{startErr: errors.New("no device")}
	p := NewPlaybackController(sink, false)
	err := p.Run(session, r)
	if err == nil {
		t.Fatal("expected the device error to surface")
	}

	select {
	case perr := <-produced:
		if perr != nil {
			t.Fatalf("producer: %v", perr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer stalled behind the dead playback queue")
	}

	if p.NextIndex() != 4 {
		t.Errorf("next index: %d, reader not fully drained", p.NextIndex())
	}
	if p.Elapsed() != 0 {
		t.Errorf("elapsed: %v", p.Elapsed())
	}
	if sink.Plays() != 0 {
		t.Errorf("plays: %d", sink.Plays())
	}
}

func TestSinkFailureMidStreamKeepsDraining(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 4)

	for i := 0; i < 4; i++ {
		if err := b.Publish(context.Background(), okSegment(i, 80, 8000)); err != nil {
			t.Fatal(err)
		}
	}
	b.Close(nil)

	sink := &brokenSink{playErrAt: 2}
	p := NewPlaybackController(sink, false)
	err := p.Run(session, r)
	if err == nil {
		t.Fatal("expected the device error to surface")
	}
	if p.NextIndex() != 4 {
		t.Errorf("next index: %d, reader not fully drained", p.NextIndex())
	}
	if sink.Plays() != 2 {
		t.Errorf("plays: %d, dead device retried", sink.Plays())
	}
}

func TestSessionCancelSurfacesAsCanceled(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 3)

	if err := b.Publish(context.Background(), okSegment(0, 80, 8000)); err != nil {
		t.Fatal(err)
	}

	p := NewPlaybackController(audio.NewSimulatedSink(), true)
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(session, r) }()

	waitFor(t, "first segment", func() bool { return p.NextIndex() == 1 })
	session.Cancel()

	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled for an external cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not end after session cancel")
	}
	if p.State() != StateStopped {
		t.Errorf("state: %s", p.State())
	}
}

func TestStopEndsPlaybackCleanly(t *testing.T) {
	b := NewStreamBuffer(8)
	r := b.Register("playback")
	session := NewSession(context.Background(), 5)

	if err := b.Publish(context.Background(), okSegment(0, 80, 8000)); err != nil {
		t.Fatal(err)
	}

	p := NewPlaybackController(audio.NewSimulatedSink(), true)
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(session, r) }()

	waitFor(t, "first segment", func() bool { return p.NextIndex() == 1 })
	p.Stop()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run after stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not stop")
	}
	if p.State() != StateStopped {
		t.Errorf("state: %s", p.State())
	}
}
