package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// ESpeakEngine shells out to eSpeak/eSpeak-NG and captures the WAV it
// writes to stdout. It cannot clone voices; a provided sample is noted and
// ignored.
type ESpeakEngine struct {
	path  string
	voice string

	warnOnce sync.Once
}

func newESpeakEngine(cfg Config) (*ESpeakEngine, error) {
	path, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		return nil, fmt.Errorf("%w: eSpeak test failed: %v", ErrEngineUnavailable, err)
	}
	return &ESpeakEngine{path: path, voice: cfg.Voice}, nil
}

func (e *ESpeakEngine) Name() string { return EngineTypeESpeak.String() }

func (e *ESpeakEngine) Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error) {
	if profile != nil {
		e.warnOnce.Do(func() {
			logrus.Warn("eSpeak cannot clone voices, ignoring the voice sample")
		})
	}

	args := []string{"--stdout"}
	if e.voice != "" && e.voice != "default" {
		args = append(args, "-v", e.voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.path, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, fmt.Errorf("eSpeak failed: %v: %s", err, bytes.TrimSpace(errBuf.Bytes()))
	}

	samples, rate, channels, err := audio.DecodeWAV(bytes.NewReader(out.Bytes()))
	if err != nil {
		return Audio{}, fmt.Errorf("eSpeak output: %w", err)
	}
	return Audio{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

func (e *ESpeakEngine) Close() error { return nil }

// ListVoices runs `espeak --voices` and returns the voice names.
func (e *ESpeakEngine) ListVoices(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, e.path, "--voices")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list eSpeak voices: %w", err)
	}
	return parseESpeakVoices(out), nil
}

// parseESpeakVoices pulls the VoiceName column out of eSpeak's tabular
// voice listing, skipping the header line.
func parseESpeakVoices(out []byte) []string {
	var names []string
	for i, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 4 {
			continue
		}
		names = append(names, fields[3])
	}
	return names
}
