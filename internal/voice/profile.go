// Package voice handles the reference-audio handle used for voice
// cloning. The pipeline never inspects the acoustic content; it only
// checks that the file exists and looks like usable audio before handing
// the path through to the synthesis engine.
package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

var (
	ErrProfileNotFound = errors.New("voice sample file not found")
	ErrProfileUnusable = errors.New("voice sample is not usable")
)

// Profile is an opaque handle passed through to the synthesis engine.
type Profile struct {
	ReferenceAudioPath string
	SampleRate         int
	Channels           int
	Duration           time.Duration
}

// Load validates the reference audio just enough to fail early: the file
// must exist, be a WAV, decode to a sane sample rate, and be long enough
// to clone from. Anything beyond that is the engine's business.
func Load(path string) (*Profile, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrProfileNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, path)
	}
	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		return nil, fmt.Errorf("%w: %s must be a WAV file", ErrProfileUnusable, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open voice sample: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrProfileUnusable, path)
	}
	dur, err := d.Duration()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileUnusable, path, err)
	}

	p := &Profile{
		ReferenceAudioPath: path,
		SampleRate:         int(d.SampleRate),
		Channels:           int(d.NumChans),
		Duration:           dur,
	}
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		return nil, fmt.Errorf("%w: sample rate %d Hz out of range", ErrProfileUnusable, p.SampleRate)
	}
	if dur < time.Second {
		return nil, fmt.Errorf("%w: %s is shorter than one second", ErrProfileUnusable, path)
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"rate":     p.SampleRate,
		"duration": dur.Round(time.Millisecond),
	}).Info("voice sample loaded")
	return p, nil
}
