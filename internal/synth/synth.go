// Package synth defines the synthesis engine contract and its backends.
// An engine turns one chunk of text (plus an optional voice sample) into
// PCM audio; everything about how the audio is computed stays behind this
// interface.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// ErrEngineUnavailable marks fatal engine conditions (binary missing,
// service unreachable, out of memory). Any other synthesis error is
// chunk-local and handled by the skip policy upstream.
var ErrEngineUnavailable = errors.New("synthesis engine unavailable")

// ErrNoVoiceListing is returned by ListVoices for engines that cannot
// enumerate named voices.
var ErrNoVoiceListing = errors.New("engine does not list voices")

// Audio is one chunk's worth of PCM: interleaved 16-bit samples.
type Audio struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Duration is the playback time the samples represent.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 || len(a.Samples) == 0 {
		return 0
	}
	frames := len(a.Samples) / a.Channels
	return time.Duration(frames) * time.Second / time.Duration(a.SampleRate)
}

// Engine converts text to audio one chunk at a time.
type Engine interface {
	Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error)
	Name() string
	Close() error
}

// VoiceLister is implemented by engines that can enumerate their native
// voice names.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]string, error)
}

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeExec          EngineType = "exec"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAuto          EngineType = "auto"
)

func (e EngineType) String() string {
	return string(e)
}

// Config selects and parameterizes an engine.
type Config struct {
	Type       string
	Command    string // exec engine command line
	Voice      string // engine-native voice name (not the cloning sample)
	SampleRate int
	Channels   int
	UseGPU     bool

	CacheEnabled bool
	CacheDir     string
	CacheMaxAge  time.Duration
}

// New creates an engine from config, wrapping it in the audio cache when
// enabled.
func New(cfg Config) (Engine, error) {
	if cfg.Type == EngineTypeAuto.String() {
		cfg.Type = pickEngine(cfg).String()
		logrus.WithField("engine", cfg.Type).Info("auto-selected synthesis engine")
	}

	var (
		engine Engine
		err    error
	)
	switch cfg.Type {
	case EngineTypeMock.String():
		engine = NewMockEngine(cfg.SampleRate, cfg.Channels)
	case EngineTypeESpeak.String():
		engine, err = newESpeakEngine(cfg)
	case EngineTypeExec.String():
		engine, err = newExecEngine(cfg)
	case EngineTypeGoogleClassic.String():
		engine, err = newGoogleClassicEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported synthesis engine type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled {
		engine, err = NewCachingEngine(engine, cfg.CacheDir, cfg.CacheMaxAge)
		if err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// pickEngine chooses the best backend available on this machine.
func pickEngine(cfg Config) EngineType {
	if cfg.Command != "" {
		return EngineTypeExec
	}
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}
	if _, err := findESpeakExecutable(); err == nil {
		return EngineTypeESpeak
	}
	logrus.Warn("no synthesis backend found, falling back to the mock engine")
	return EngineTypeMock
}

// Available returns the engine types usable right now.
func Available(cfg Config) []EngineType {
	engines := []EngineType{EngineTypeMock}
	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	if cfg.Command != "" {
		engines = append(engines, EngineTypeExec)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	return engines
}

func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}
