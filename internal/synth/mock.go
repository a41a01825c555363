package synth

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// MockEngine produces a deterministic tone whose length tracks the word
// count, so pipeline timing behaves like real synthesis without a model.
// Failures can be scripted per call for exercising the skip policy.
type MockEngine struct {
	sampleRate int
	channels   int

	mu    sync.Mutex
	calls int

	// FailCalls maps 1-based call numbers to the error that call returns.
	FailCalls map[int]error
	// PerWord is the number of samples generated per word.
	PerWord int
}

func NewMockEngine(sampleRate, channels int) *MockEngine {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if channels <= 0 {
		channels = 1
	}
	return &MockEngine{
		sampleRate: sampleRate,
		channels:   channels,
		PerWord:    sampleRate / 4, // 250ms of tone per word
	}
}

func (m *MockEngine) Name() string { return EngineTypeMock.String() }

func (m *MockEngine) Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}

	m.mu.Lock()
	m.calls++
	call := m.calls
	perWord := m.PerWord
	scripted := m.FailCalls[call]
	m.mu.Unlock()

	if scripted != nil {
		return Audio{}, scripted
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	frames := words * perWord
	samples := make([]int16, frames*m.channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate)))
		for c := 0; c < m.channels; c++ {
			samples[i*m.channels+c] = v
		}
	}
	return Audio{Samples: samples, SampleRate: m.sampleRate, Channels: m.channels}, nil
}

func (m *MockEngine) Close() error { return nil }

// Calls reports how many synthesis calls were made.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
