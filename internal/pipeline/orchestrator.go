package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/synth"
	"github.com/cunicopia-dev/local-tts-studio/internal/text"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// ErrTooManyFailures escalates repeated chunk-local failures to a fatal
// session abort.
var ErrTooManyFailures = errors.New("too many consecutive synthesis failures")

// Orchestrator is the single producer: it walks the chunk sequence in
// index order, calls the synthesis engine once per chunk, and publishes
// the resulting segments into the stream buffer. A failing chunk becomes a
// placeholder and the session continues; a fatal engine condition or too
// many consecutive failures aborts it.
type Orchestrator struct {
	engine  synth.Engine
	buffer  *StreamBuffer
	profile *voice.Profile

	// MaxConsecutiveFailures escalates to a fatal abort once this many
	// chunks fail back to back. Zero disables escalation.
	MaxConsecutiveFailures int
}

func NewOrchestrator(engine synth.Engine, buffer *StreamBuffer, profile *voice.Profile) *Orchestrator {
	return &Orchestrator{
		engine:                 engine,
		buffer:                 buffer,
		profile:                profile,
		MaxConsecutiveFailures: 5,
	}
}

// Run synthesizes every chunk in order, blocking on buffer backpressure.
// It returns nil when the whole sequence was delivered, the context error
// on cancellation, and the fatal condition on abort. The buffer is always
// closed before returning, so consumers terminate either way.
func (o *Orchestrator) Run(session *Session, chunks []text.Chunk) error {
	ctx := session.Context()
	consecutive := 0

	for _, chunk := range chunks {
		// Cancellation is checked before each synthesis call: a cancelled
		// session never emits another segment.
		if err := ctx.Err(); err != nil {
			logrus.WithField("chunk", chunk.Index).Info("session cancelled before synthesis")
			o.buffer.Close(err)
			return err
		}

		audio, err := o.engine.Synthesize(ctx, chunk.Text, o.profile)
		if err != nil {
			if ctx.Err() != nil {
				o.buffer.Close(ctx.Err())
				return ctx.Err()
			}
			if errors.Is(err, synth.ErrEngineUnavailable) {
				fatal := fmt.Errorf("chunk %d: %w", chunk.Index, err)
				logrus.WithError(err).Error("synthesis engine failed fatally, aborting session")
				o.buffer.Close(fatal)
				return fatal
			}

			// Chunk-local failure: keep the ordinal slot with a
			// placeholder so downstream never sees a gap.
			consecutive++
			session.AddWarning()
			logrus.WithError(err).WithField("chunk", chunk.Index).Warn("chunk synthesis failed, skipping")
			if pubErr := o.publish(ctx, session, Segment{Index: chunk.Index, Status: StatusFailed}); pubErr != nil {
				return pubErr
			}
			if o.MaxConsecutiveFailures > 0 && consecutive >= o.MaxConsecutiveFailures {
				fatal := fmt.Errorf("%w: %d in a row at chunk %d", ErrTooManyFailures, consecutive, chunk.Index)
				logrus.Error(fatal)
				o.buffer.Close(fatal)
				return fatal
			}
			continue
		}

		consecutive = 0
		seg := Segment{
			Index:      chunk.Index,
			Samples:    audio.Samples,
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			Status:     StatusOK,
		}
		if len(seg.Samples) == 0 {
			// An engine returning success with no audio still fills its
			// slot, as skipped rather than ok.
			seg.Status = StatusSkipped
		}
		if err := o.publish(ctx, session, seg); err != nil {
			return err
		}
	}

	o.buffer.Close(nil)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, session *Session, seg Segment) error {
	if err := o.buffer.Publish(ctx, seg); err != nil {
		o.buffer.Close(err)
		return err
	}
	session.Advance(seg.Index)
	return nil
}
