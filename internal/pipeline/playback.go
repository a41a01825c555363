package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
)

type PlayState int

const (
	StateIdle PlayState = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
)

func (s PlayState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PlaybackController consumes the segment stream and drives the output
// sink. It owns the play/pause/stop state machine; Stopped is terminal for
// the session. When no device was detected the sink is the simulated one
// and the same state machine runs against timed no-ops.
type PlaybackController struct {
	sink       audio.Sink
	simulating bool

	mu        sync.Mutex
	cond      *sync.Cond
	state     PlayState
	nextIndex int
	elapsed   time.Duration
	stop      context.CancelFunc

	// Progress, when set, is called after each consumed segment.
	Progress func(Segment)
}

func NewPlaybackController(sink audio.Sink, simulating bool) *PlaybackController {
	p := &PlaybackController{sink: sink, simulating: simulating, state: StateIdle}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Run consumes segments until the stream ends, the session is cancelled,
// or Stop is called. Failed and skipped segments pass through as
// zero-duration silence with no state machine disruption.
func (p *PlaybackController) Run(session *Session, r *Reader) error {
	ctx, cancel := context.WithCancel(session.Context())
	defer cancel()

	p.mu.Lock()
	p.state = StateBuffering
	p.stop = cancel
	p.mu.Unlock()

	if p.simulating {
		logrus.Info("no audio device available, simulating playback")
	}

	started := false
	var deviceErr error
	for {
		if stopped := p.waitWhilePaused(); stopped {
			p.sink.Flush()
			return p.sink.Close()
		}

		seg, err := r.Next(ctx)
		if err != nil {
			// Stop moves the state machine to Stopped before cancelling the
			// read, which is what distinguishes it from an external
			// cancellation here.
			wasStopped := p.State() == StateStopped
			p.setState(StateStopped)
			p.sink.Flush()
			closeErr := p.sink.Close()
			switch {
			case errors.Is(err, ErrEndOfStream):
				if deviceErr != nil {
					return deviceErr
				}
				return closeErr
			case wasStopped && errors.Is(err, context.Canceled):
				return closeErr
			default:
				return err
			}
		}

		if seg.Status == StatusOK && deviceErr == nil {
			if !started {
				if err := p.sink.Start(seg.SampleRate, seg.Channels); err != nil {
					// Device trouble is local to playback. The reader keeps
					// draining so the producer and sibling consumers never
					// stall behind a dead queue.
					deviceErr = err
					logrus.WithError(err).Warn("audio device failed, discarding playback")
				} else {
					started = true
				}
			}
			if deviceErr == nil {
				p.setStateIf(StateBuffering, StatePlaying)

				nominal := seg.NominalDuration()
				if err := p.sink.Play(ctx, seg.Samples, nominal); err != nil {
					if ctx.Err() != nil {
						wasStopped := p.State() == StateStopped
						p.setState(StateStopped)
						p.sink.Flush()
						closeErr := p.sink.Close()
						if wasStopped {
							return closeErr
						}
						return err
					}
					deviceErr = err
					logrus.WithError(err).Warn("audio device failed mid-stream, discarding playback")
				} else {
					p.mu.Lock()
					p.elapsed += nominal
					p.mu.Unlock()
				}
			}
		}
		// failed/skipped segments, and everything after a device failure,
		// advance silently

		p.mu.Lock()
		p.nextIndex = seg.Index + 1
		p.mu.Unlock()
		if p.Progress != nil {
			p.Progress(seg)
		}
	}
}

// waitWhilePaused blocks while the controller is paused. It reports true
// when the controller was stopped instead of resumed.
func (p *PlaybackController) waitWhilePaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.state == StatePaused {
		p.cond.Wait()
	}
	return p.state == StateStopped
}

// Pause halts consumption from the stream buffer. A segment already handed
// to the device finishes; the next read happens only after Resume.
func (p *PlaybackController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePlaying || p.state == StateBuffering {
		p.state = StatePaused
	}
}

// Resume continues consumption from the same logical position: no segment
// is skipped or repeated.
func (p *PlaybackController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePaused {
		p.state = StatePlaying
		p.cond.Broadcast()
	}
}

// Stop discards all further segments and releases the device. Terminal for
// this session.
func (p *PlaybackController) Stop() {
	p.mu.Lock()
	p.state = StateStopped
	stop := p.stop
	p.cond.Broadcast()
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (p *PlaybackController) State() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NextIndex is the index of the next segment the controller will consume.
func (p *PlaybackController) NextIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextIndex
}

// Elapsed is the accumulated nominal playback time.
func (p *PlaybackController) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

func (p *PlaybackController) Simulating() bool { return p.simulating }

func (p *PlaybackController) setState(s PlayState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *PlaybackController) setStateIf(from, to PlayState) {
	p.mu.Lock()
	if p.state == from {
		p.state = to
	}
	p.mu.Unlock()
}
