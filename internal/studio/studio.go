// Package studio wires the document, chunking, synthesis and consumer
// pieces into runnable sessions behind the CLI commands.
package studio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
	"github.com/cunicopia-dev/local-tts-studio/internal/cli/scheme/colours"
	"github.com/cunicopia-dev/local-tts-studio/internal/config"
	"github.com/cunicopia-dev/local-tts-studio/internal/document"
	"github.com/cunicopia-dev/local-tts-studio/internal/pipeline"
	"github.com/cunicopia-dev/local-tts-studio/internal/synth"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// Studio runs synthesis sessions with one fixed configuration value. No
// global state: every run gets its construction parameters from here.
type Studio struct {
	settings config.Settings
}

func New(settings config.Settings) *Studio {
	return &Studio{settings: settings}
}

// RunSummary is what a finished (or cancelled) session reports back to the
// CLI layer.
type RunSummary struct {
	SessionID string
	Chunks    int
	Warnings  int
	Simulated bool
	Elapsed   time.Duration
	Export    *pipeline.ExportResult
	Cancelled bool
}

// Convert synthesizes input into an audio file at output, optionally
// playing it live while it is produced. It blocks until the session ends.
func (s *Studio) Convert(ctx context.Context, input, output string, play bool) (*RunSummary, error) {
	return s.run(ctx, input, output, play)
}

// Speak plays input live with interactive pause/resume/stop controls and
// no file output.
func (s *Studio) Speak(ctx context.Context, input string) (*RunSummary, error) {
	return s.run(ctx, input, "", true)
}

func (s *Studio) run(ctx context.Context, input, output string, play bool) (*RunSummary, error) {
	doc, err := document.Load(input)
	if err != nil {
		return nil, err
	}
	doc.Normalize()
	if n := len(doc.Log); n > 0 {
		logrus.WithField("substitutions", n).Debug("text cleaned for synthesis")
	}

	chunks, err := doc.Chunks(s.settings.ChunkSize)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, document.ErrEmptyInput
	}

	var profile *voice.Profile
	if s.settings.VoicePath != "" {
		profile, err = voice.Load(s.settings.VoicePath)
		if err != nil {
			return nil, err
		}
	}

	engine, err := synth.New(synth.Config{
		Type:         s.settings.Engine,
		Command:      s.settings.EngineCommand,
		Voice:        s.settings.EngineVoice,
		SampleRate:   s.settings.SampleRate,
		Channels:     s.settings.Channels,
		UseGPU:       s.settings.UseGPU,
		CacheEnabled: s.settings.CacheEnabled,
		CacheDir:     s.settings.CacheDir,
		CacheMaxAge:  s.settings.CacheMaxAge,
	})
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	session := pipeline.NewSession(ctx, len(chunks))
	buffer := pipeline.NewStreamBuffer(s.settings.BufferCapacity)

	summary := &RunSummary{
		SessionID: session.ID.String(),
		Chunks:    len(chunks),
	}

	var (
		playReader   *pipeline.Reader
		exportReader *pipeline.Reader
	)
	if play {
		playReader = buffer.Register("playback")
	}
	if output != "" {
		exportReader = buffer.Register("export")
	}

	orch := pipeline.NewOrchestrator(engine, buffer, profile)
	orch.MaxConsecutiveFailures = s.settings.MaxConsecutiveFailures

	var (
		wg          sync.WaitGroup
		produceErr  error
		exportErr   error
		exportRes   *pipeline.ExportResult
		playbackErr error
		controller  *pipeline.PlaybackController
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		produceErr = orch.Run(session, chunks)
	}()

	if play {
		simulate := !audio.Detect(s.settings.DeviceProbeTimeout)
		var sink audio.Sink
		if simulate {
			sink = audio.NewSimulatedSink()
		} else {
			sink = audio.NewSpeakerSink()
		}
		controller = pipeline.NewPlaybackController(sink, simulate)
		controller.Progress = func(seg pipeline.Segment) {
			s.printProgress(seg, len(chunks))
		}
		summary.Simulated = simulate

		wg.Add(1)
		go func() {
			defer wg.Done()
			playbackErr = controller.Run(session, playReader)
		}()

		if output == "" {
			// Speak mode keeps the terminal interactive while audio runs.
			go s.controlLoop(session, controller)
		}
	}

	if output != "" {
		exporter := pipeline.NewExporter(s.settings.Format, s.settings.SilenceDuration())
		if !play {
			exporter.Progress = func(seg pipeline.Segment) {
				s.printProgress(seg, len(chunks))
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			exportRes, exportErr = exporter.Run(session, exportReader, output)
		}()
	}

	wg.Wait()
	fmt.Println()

	summary.Warnings = session.Warnings()
	summary.Export = exportRes
	if controller != nil {
		summary.Elapsed = controller.Elapsed()
	}

	// Device-local trouble never fails the session; it is logged and the
	// remaining consumers carry on.
	if playbackErr != nil && !errors.Is(playbackErr, context.Canceled) {
		logrus.WithError(playbackErr).Warn("playback ended early")
	}

	if errors.Is(produceErr, context.Canceled) {
		summary.Cancelled = true
		return summary, nil
	}
	if produceErr != nil {
		return summary, produceErr
	}
	if output != "" && exportErr != nil {
		return summary, exportErr
	}
	return summary, nil
}

func (s *Studio) printProgress(seg pipeline.Segment, total int) {
	mark := "🔊"
	if seg.Status != pipeline.StatusOK {
		mark = "⚠️"
	}
	colours.Progress.Printf("\r%s chunk %d/%d ", mark, seg.Index+1, total)
}

// controlLoop reads simple single-letter commands while audio plays.
func (s *Studio) controlLoop(session *pipeline.Session, controller *pipeline.PlaybackController) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println()
	colours.Info.Println("controls: 'p' pause/resume, 's' stop")
	for {
		select {
		case <-session.Context().Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "p", "pause":
			if controller.State() == pipeline.StatePaused {
				controller.Resume()
				colours.Success.Println("▶️  resumed")
			} else {
				controller.Pause()
				colours.Warning.Println("⏸️  paused")
			}
		case "s", "stop":
			controller.Stop()
			session.Cancel()
			colours.Warning.Println("⏹️  stopped")
			return
		case "":
			continue
		default:
			colours.Info.Println("use 'p' to pause/resume, 's' to stop")
		}
	}
}

// Engines lists the synthesis backends usable with the current settings.
func (s *Studio) Engines() []synth.EngineType {
	return synth.Available(synth.Config{Command: s.settings.EngineCommand})
}

// Voices lists the configured engine's native voice names. Engines without
// a voice catalogue return synth.ErrNoVoiceListing.
func (s *Studio) Voices(ctx context.Context) ([]string, error) {
	engine, err := synth.New(synth.Config{
		Type:       s.settings.Engine,
		Command:    s.settings.EngineCommand,
		Voice:      s.settings.EngineVoice,
		SampleRate: s.settings.SampleRate,
		Channels:   s.settings.Channels,
	})
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	lister, ok := engine.(synth.VoiceLister)
	if !ok {
		return nil, fmt.Errorf("%s: %w", engine.Name(), synth.ErrNoVoiceListing)
	}
	return lister.ListVoices(ctx)
}
