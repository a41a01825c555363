package synth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockEngineDeterministicLength(t *testing.T) {
	m := NewMockEngine(8000, 1)
	m.PerWord = 800 // 100ms per word

	a, err := m.Synthesize(context.Background(), "two words", nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(a.Samples) != 1600 {
		t.Fatalf("got %d samples, want 1600", len(a.Samples))
	}
	if a.Duration() != 200*time.Millisecond {
		t.Fatalf("duration: %v", a.Duration())
	}

	b, err := m.Synthesize(context.Background(), "two words", nil)
	if err != nil {
		t.Fatalf("second synthesize: %v", err)
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatal("same text produced different audio")
		}
	}
	if m.Calls() != 2 {
		t.Fatalf("calls: %d", m.Calls())
	}
}

func TestMockEngineScriptedFailure(t *testing.T) {
	m := NewMockEngine(8000, 1)
	boom := errors.New("boom")
	m.FailCalls = map[int]error{2: boom}

	if _, err := m.Synthesize(context.Background(), "one", nil); err != nil {
		t.Fatalf("call 1: %v", err)
	}
	if _, err := m.Synthesize(context.Background(), "two", nil); !errors.Is(err, boom) {
		t.Fatalf("call 2: got %v, want scripted error", err)
	}
	if _, err := m.Synthesize(context.Background(), "three", nil); err != nil {
		t.Fatalf("call 3: %v", err)
	}
}

func TestMockEngineHonoursCancel(t *testing.T) {
	m := NewMockEngine(8000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Synthesize(ctx, "text", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
