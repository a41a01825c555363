package synth

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// CachingEngine wraps another engine and keeps each chunk's audio as a WAV
// file on disk, keyed by engine, voice and text. Re-converting the same
// document skips the expensive synthesis calls.
type CachingEngine struct {
	inner     Engine
	dir       string
	indexFile string
	maxAge    time.Duration

	mu    sync.Mutex
	index map[string]cacheEntry
}

type cacheEntry struct {
	File       string    `json:"file"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewCachingEngine(inner Engine, dir string, maxAge time.Duration) (*CachingEngine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	c := &CachingEngine{
		inner:     inner,
		dir:       dir,
		indexFile: filepath.Join(dir, "audio_cache.json"),
		maxAge:    maxAge,
		index:     map[string]cacheEntry{},
	}
	c.loadIndex()
	return c, nil
}

func (c *CachingEngine) Name() string { return c.inner.Name() }

func (c *CachingEngine) Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error) {
	key := c.key(text, profile)

	if a, ok := c.lookup(key); ok {
		logrus.WithField("key", key[:8]).Debug("audio cache hit")
		return a, nil
	}

	a, err := c.inner.Synthesize(ctx, text, profile)
	if err != nil {
		return Audio{}, err
	}
	c.store(key, a)
	return a, nil
}

func (c *CachingEngine) Close() error { return c.inner.Close() }

// ListVoices forwards to the wrapped engine when it supports listing.
func (c *CachingEngine) ListVoices(ctx context.Context) ([]string, error) {
	if l, ok := c.inner.(VoiceLister); ok {
		return l.ListVoices(ctx)
	}
	return nil, fmt.Errorf("%s: %w", c.inner.Name(), ErrNoVoiceListing)
}

// Clear removes every cached file and the index.
func (c *CachingEngine) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = map[string]cacheEntry{}
	return os.RemoveAll(c.dir)
}

func (c *CachingEngine) key(text string, profile *voice.Profile) string {
	voicePath := ""
	if profile != nil {
		voicePath = profile.ReferenceAudioPath
	}
	sum := md5.Sum([]byte(c.inner.Name() + "|" + voicePath + "|" + text))
	return fmt.Sprintf("%x", sum)
}

func (c *CachingEngine) lookup(key string) (Audio, bool) {
	c.mu.Lock()
	entry, ok := c.index[key]
	c.mu.Unlock()
	if !ok {
		return Audio{}, false
	}
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		return Audio{}, false
	}
	samples, rate, channels, err := audio.DecodeWAVFile(filepath.Join(c.dir, entry.File))
	if err != nil {
		logrus.WithError(err).Warn("cached audio unreadable, re-synthesizing")
		return Audio{}, false
	}
	return Audio{Samples: samples, SampleRate: rate, Channels: channels}, true
}

func (c *CachingEngine) store(key string, a Audio) {
	file := key + ".wav"
	if err := audio.WriteWAVFile(filepath.Join(c.dir, file), a.Samples, a.SampleRate, a.Channels); err != nil {
		logrus.WithError(err).Warn("failed to cache audio chunk")
		return
	}
	c.mu.Lock()
	c.index[key] = cacheEntry{
		File:       file,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		CreatedAt:  time.Now(),
	}
	c.mu.Unlock()
	c.saveIndex()
}

func (c *CachingEngine) loadIndex() {
	data, err := os.ReadFile(c.indexFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("failed to read audio cache index")
		}
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := json.Unmarshal(data, &c.index); err != nil {
		logrus.WithError(err).Warn("audio cache index corrupt, starting empty")
		c.index = map[string]cacheEntry{}
	}
}

func (c *CachingEngine) saveIndex() {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.index, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return
	}
	if err := os.WriteFile(c.indexFile, data, 0644); err != nil {
		logrus.WithError(err).Warn("failed to write audio cache index")
	}
}
