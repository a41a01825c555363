package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
)

// Sink is the playback end of the pipeline. Play blocks until the segment
// has been rendered (or the context is cancelled); the controller owns
// pause semantics by simply not calling Play while paused.
type Sink interface {
	Start(sampleRate, channels int) error
	Play(ctx context.Context, samples []int16, nominal time.Duration) error
	Flush()
	Close() error
}

const probeRate = 44100

// Detect probes once, with a bounded timeout, whether an output device can
// be opened. Speaker initialization can block indefinitely on broken audio
// stacks, so the probe runs detached and is abandoned on timeout.
func Detect(timeout time.Duration) bool {
	res := make(chan bool, 1)
	go func() {
		defer func() {
			if recover() != nil {
				res <- false
			}
		}()
		err := speaker.Init(beep.SampleRate(probeRate), probeRate/10)
		res <- err == nil
	}()
	select {
	case ok := <-res:
		return ok
	case <-time.After(timeout):
		logrus.Warn("audio device probe timed out")
		return false
	}
}

// SpeakerSink renders segments on the default output device.
type SpeakerSink struct {
	mu       sync.Mutex
	rate     int
	channels int
	started  bool
}

func NewSpeakerSink() *SpeakerSink {
	return &SpeakerSink{}
}

func (s *SpeakerSink) Start(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && s.rate == sampleRate {
		return nil
	}
	bufSize := sampleRate / 10
	if bufSize < 1 {
		bufSize = 1
	}
	if err := speaker.Init(beep.SampleRate(sampleRate), bufSize); err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	s.rate = sampleRate
	s.channels = channels
	s.started = true
	return nil
}

func (s *SpeakerSink) Play(ctx context.Context, samples []int16, nominal time.Duration) error {
	if len(samples) == 0 {
		return nil
	}
	s.mu.Lock()
	ch := s.channels
	s.mu.Unlock()
	if ch < 1 {
		ch = 1
	}
	done := make(chan struct{})
	stream := &pcmStreamer{data: samples, channels: ch}
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (s *SpeakerSink) Flush() {
	speaker.Clear()
}

func (s *SpeakerSink) Close() error {
	speaker.Clear()
	return nil
}

// pcmStreamer adapts interleaved 16-bit PCM to beep's float frames.
type pcmStreamer struct {
	data     []int16
	channels int
	pos      int
}

func (p *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	n := 0
	for n < len(out) && p.pos < len(p.data) {
		if p.channels >= 2 {
			l := float64(p.data[p.pos]) / 32768
			r := l
			if p.pos+1 < len(p.data) {
				r = float64(p.data[p.pos+1]) / 32768
			}
			out[n] = [2]float64{l, r}
			p.pos += 2
		} else {
			v := float64(p.data[p.pos]) / 32768
			out[n] = [2]float64{v, v}
			p.pos++
		}
		n++
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }

// SimulatedSink preserves timing and ordering semantics without a device:
// each segment is a timed no-op for its nominal duration.
type SimulatedSink struct {
	mu      sync.Mutex
	elapsed time.Duration
}

func NewSimulatedSink() *SimulatedSink {
	return &SimulatedSink{}
}

func (s *SimulatedSink) Start(sampleRate, channels int) error { return nil }

func (s *SimulatedSink) Play(ctx context.Context, samples []int16, nominal time.Duration) error {
	if nominal <= 0 {
		return nil
	}
	t := time.NewTimer(nominal)
	defer t.Stop()
	select {
	case <-t.C:
		s.mu.Lock()
		s.elapsed += nominal
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SimulatedSink) Flush() {}

func (s *SimulatedSink) Close() error { return nil }

// Elapsed reports the total simulated playback time.
func (s *SimulatedSink) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}
