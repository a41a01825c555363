package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
	"github.com/cunicopia-dev/local-tts-studio/internal/voice"
)

// ExecEngine drives an arbitrary synthesis command: a JSON request on
// stdin, a complete WAV on stdout. This is the hook for local neural
// models (an XTTS wrapper script, piper, etc.) without linking them in.
type ExecEngine struct {
	cmd    []string
	useGPU bool
}

type execRequest struct {
	Text       string `json:"text"`
	VoicePath  string `json:"voice_path,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	UseGPU     bool   `json:"use_gpu"`
}

func newExecEngine(cfg Config) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: synthesis command is empty", ErrEngineUnavailable)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return &ExecEngine{cmd: args, useGPU: cfg.UseGPU}, nil
}

func (e *ExecEngine) Name() string { return EngineTypeExec.String() }

func (e *ExecEngine) Synthesize(ctx context.Context, text string, profile *voice.Profile) (Audio, error) {
	req := execRequest{Text: text, UseGPU: e.useGPU}
	if profile != nil {
		req.VoicePath = profile.ReferenceAudioPath
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Audio{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return Audio{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return Audio{}, fmt.Errorf("synthesis command failed: %v: %s", err, bytes.TrimSpace(errBuf.Bytes()))
	}

	samples, rate, channels, err := audio.DecodeWAV(bytes.NewReader(out.Bytes()))
	if err != nil {
		return Audio{}, fmt.Errorf("synthesis command output: %w", err)
	}
	return Audio{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

func (e *ExecEngine) Close() error { return nil }
