package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Named validation failures surfaced before a session starts.
var (
	ErrInvalidChunkSize      = errors.New("chunk size must be a positive integer")
	ErrInvalidBufferCapacity = errors.New("buffer capacity must be a positive integer")
	ErrInvalidFormat         = errors.New("output format must be wav or mp3")
)

// Settings is the explicit configuration value passed into each pipeline
// construction call. Nothing in the pipeline reads viper directly.
type Settings struct {
	Engine        string
	EngineCommand string
	EngineVoice   string
	VoicePath     string

	ChunkSize              int
	BufferCapacity         int
	MaxConsecutiveFailures int

	Format    string
	SilenceMs int

	SampleRate int
	Channels   int

	CacheEnabled bool
	CacheDir     string
	CacheMaxAge  time.Duration

	DeviceProbeTimeout time.Duration

	UseGPU  bool
	Verbose bool
}

func SetDefaults() {
	viper.SetDefault("tts.engine", "auto")
	viper.SetDefault("tts.command", "")
	viper.SetDefault("tts.voice", "")
	viper.SetDefault("tts.voice_sample", "")
	viper.SetDefault("tts.use_gpu", false)

	viper.SetDefault("text.chunk_size", 2000)

	viper.SetDefault("synthesis.buffer_capacity", 8)
	viper.SetDefault("synthesis.max_consecutive_failures", 5)
	viper.SetDefault("synthesis.sample_rate", 22050)
	viper.SetDefault("synthesis.channels", 1)

	viper.SetDefault("export.format", "wav")
	viper.SetDefault("export.silence_ms", 250)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.path", "./cache/audio")
	viper.SetDefault("cache.max_age", "720h")

	viper.SetDefault("playback.device_probe_timeout", "2s")
}

// Load snapshots the current viper state into a Settings value and
// validates it.
func Load() (Settings, error) {
	s := Settings{
		Engine:                 viper.GetString("tts.engine"),
		EngineCommand:          viper.GetString("tts.command"),
		EngineVoice:            viper.GetString("tts.voice"),
		VoicePath:              viper.GetString("tts.voice_sample"),
		ChunkSize:              viper.GetInt("text.chunk_size"),
		BufferCapacity:         viper.GetInt("synthesis.buffer_capacity"),
		MaxConsecutiveFailures: viper.GetInt("synthesis.max_consecutive_failures"),
		Format:                 viper.GetString("export.format"),
		SilenceMs:              viper.GetInt("export.silence_ms"),
		SampleRate:             viper.GetInt("synthesis.sample_rate"),
		Channels:               viper.GetInt("synthesis.channels"),
		CacheEnabled:           viper.GetBool("cache.enabled"),
		CacheDir:               viper.GetString("cache.path"),
		CacheMaxAge:            viper.GetDuration("cache.max_age"),
		DeviceProbeTimeout:     viper.GetDuration("playback.device_probe_timeout"),
		UseGPU:                 viper.GetBool("tts.use_gpu"),
		Verbose:                viper.GetBool("verbose"),
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, s.ChunkSize)
	}
	if s.BufferCapacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBufferCapacity, s.BufferCapacity)
	}
	if s.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("synthesis.max_consecutive_failures must not be negative, got %d", s.MaxConsecutiveFailures)
	}
	switch s.Format {
	case "wav", "mp3":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidFormat, s.Format)
	}
	if s.SilenceMs < 0 {
		return fmt.Errorf("export.silence_ms must not be negative, got %d", s.SilenceMs)
	}
	return nil
}

func (s Settings) SilenceDuration() time.Duration {
	return time.Duration(s.SilenceMs) * time.Millisecond
}
