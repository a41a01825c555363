package synth

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// GoogleClassicEngine synthesizes through Google Cloud Text-to-Speech,
// requesting LINEAR16 so the response decodes straight into PCM. Cloud
// voices cannot use a local cloning sample; it is ignored with a warning.
type GoogleClassicEngine struct {
	client *texttospeech.Client
	voice  string

	warnOnce sync.Once
}

func newGoogleClassicEngine(cfg Config) (*GoogleClassicEngine, error) {
	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%w: create TTS client: %v", ErrEngineUnavailable, err)
	}
	v := cfg.Voice
	if v == "" || v == "default" {
		v = "en-US-Chirp3-HD-Charon"
	}
	return &GoogleClassicEngine{client: client, voice: v}, nil
}

func (g *GoogleClassicEngine) Name() string { return EngineTypeGoogleClassic.String() }

func (g *GoogleClassicEngine) Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error) {
	if profile != nil {
		g.warnOnce.Do(func() {
			logrus.Warn("cloud voices cannot use a local voice sample, ignoring it")
		})
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageFromVoice(g.voice),
			Name:         g.voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
		},
	}
	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, fmt.Errorf("cloud synthesis failed: %w", err)
	}

	samples, rate, channels, err := audio.DecodeWAV(bytes.NewReader(resp.AudioContent))
	if err != nil {
		return Audio{}, fmt.Errorf("cloud synthesis output: %w", err)
	}
	return Audio{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// ListVoices returns the names of all voices the service offers.
func (g *GoogleClassicEngine) ListVoices(ctx context.Context) ([]string, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, err
	}
	voices := make([]string, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, v.Name)
	}
	return voices, nil
}

func (g *GoogleClassicEngine) Close() error {
	return g.client.Close()
}

// languageFromVoice extracts the language code prefix of a full voice name
// like en-US-Chirp3-HD-Charon.
func languageFromVoice(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
