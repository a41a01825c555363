package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetDefaults()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Engine != "auto" {
		t.Errorf("engine default: %q", s.Engine)
	}
	if s.ChunkSize != 2000 {
		t.Errorf("chunk size default: %d", s.ChunkSize)
	}
	if s.BufferCapacity != 8 {
		t.Errorf("buffer capacity default: %d", s.BufferCapacity)
	}
	if s.MaxConsecutiveFailures != 5 {
		t.Errorf("max consecutive failures default: %d", s.MaxConsecutiveFailures)
	}
	if s.Format != "wav" {
		t.Errorf("format default: %q", s.Format)
	}
	if s.SilenceDuration() != 250*time.Millisecond {
		t.Errorf("silence default: %v", s.SilenceDuration())
	}
	if s.DeviceProbeTimeout != 2*time.Second {
		t.Errorf("device probe timeout default: %v", s.DeviceProbeTimeout)
	}
}

func TestLoadRejectsInvalidChunkSize(t *testing.T) {
	resetViper(t)
	viper.Set("text.chunk_size", 0)

	if _, err := Load(); !errors.Is(err, ErrInvalidChunkSize) {
		t.Fatalf("got %v, want ErrInvalidChunkSize", err)
	}
}

func TestLoadRejectsInvalidBufferCapacity(t *testing.T) {
	resetViper(t)
	viper.Set("synthesis.buffer_capacity", -2)

	if _, err := Load(); !errors.Is(err, ErrInvalidBufferCapacity) {
		t.Fatalf("got %v, want ErrInvalidBufferCapacity", err)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	resetViper(t)
	viper.Set("export.format", "ogg")

	if _, err := Load(); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)
	viper.Set("tts.engine", "espeak")
	viper.Set("text.chunk_size", 120)
	viper.Set("export.format", "mp3")

	s, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Engine != "espeak" || s.ChunkSize != 120 || s.Format != "mp3" {
		t.Fatalf("overrides not applied: %+v", s)
	}
}
