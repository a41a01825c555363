package pipeline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cunicopia-dev/local-tts-studio/internal/audio"
)

// ErrNothingToExport is returned when a session aborted before any segment
// reached the exporter.
var ErrNothingToExport = errors.New("no audio segments received before the session ended")

// ExportResult describes the file the exporter produced.
type ExportResult struct {
	Path     string
	Format   string
	Segments int
	Partial  bool
	Duration time.Duration
}

// Exporter assembles the ordered segment stream into a single audio file.
// It is an independent consumer: a paused playback never delays it, and it
// never touches the output device. Failed and skipped segments become a
// short nominal silence so the final file keeps the document's shape.
type Exporter struct {
	Format     string
	SilenceDur time.Duration

	// Progress, when set, is called after each received segment.
	Progress func(Segment)
}

func NewExporter(format string, silence time.Duration) *Exporter {
	return &Exporter{Format: format, SilenceDur: silence}
}

// Run consumes the reader to the end of the session and encodes the
// concatenated waveform to dest. On fatal abort or cancellation it writes
// whatever arrived and marks the result partial rather than discarding it.
func (e *Exporter) Run(session *Session, r *Reader, dest string) (*ExportResult, error) {
	var (
		samples    []int16
		sampleRate int
		channels   int
		leading    int // placeholder slots seen before the format is known
		count      int
		lastIndex  = -1
		streamErr  error
	)

	for {
		seg, err := r.Next(session.Context())
		if err != nil {
			if !errors.Is(err, ErrEndOfStream) {
				streamErr = err
			}
			break
		}
		count++
		lastIndex = seg.Index
		if e.Progress != nil {
			e.Progress(seg)
		}

		if seg.Status == StatusOK {
			if sampleRate == 0 {
				sampleRate = seg.SampleRate
				channels = seg.Channels
				if channels < 1 {
					channels = 1
				}
				for i := 0; i < leading; i++ {
					samples = append(samples, e.silence(sampleRate, channels)...)
				}
			}
			samples = append(samples, seg.Samples...)
			continue
		}
		// Placeholder slot: substitute nominal silence, deferred until an
		// ok segment has fixed the output format.
		if sampleRate == 0 {
			leading++
		} else {
			samples = append(samples, e.silence(sampleRate, channels)...)
		}
	}

	if count == 0 {
		if streamErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNothingToExport, streamErr)
		}
		return nil, ErrNothingToExport
	}
	if sampleRate == 0 {
		// Every received segment was a placeholder; fall back to a default
		// format so the silence is still exportable.
		sampleRate = 22050
		channels = 1
		for i := 0; i < leading; i++ {
			samples = append(samples, e.silence(sampleRate, channels)...)
		}
	}

	partial := streamErr != nil || lastIndex != session.TotalChunks-1
	if err := e.encode(dest, samples, sampleRate, channels); err != nil {
		return nil, err
	}

	res := &ExportResult{
		Path:     dest,
		Format:   e.Format,
		Segments: count,
		Partial:  partial,
		Duration: time.Duration(len(samples)/channels) * time.Second / time.Duration(sampleRate),
	}
	logrus.WithFields(logrus.Fields{
		"path":     dest,
		"segments": count,
		"partial":  partial,
	}).Info("export finished")
	return res, nil
}

func (e *Exporter) silence(sampleRate, channels int) []int16 {
	n := int(e.SilenceDur.Seconds()*float64(sampleRate)) * channels
	if n < 0 {
		n = 0
	}
	return make([]int16, n)
}

func (e *Exporter) encode(dest string, samples []int16, sampleRate, channels int) error {
	switch e.Format {
	case "wav", "":
		return audio.WriteWAVFile(dest, samples, sampleRate, channels)
	case "mp3":
		return e.encodeMP3(dest, samples, sampleRate, channels)
	default:
		return fmt.Errorf("unsupported export format: %s", e.Format)
	}
}

// encodeMP3 writes a temporary WAV and transcodes it with an external
// codec, ffmpeg first, then lame.
func (e *Exporter) encodeMP3(dest string, samples []int16, sampleRate, channels int) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".export-*.wav")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := audio.WriteWAVFile(tmpPath, samples, sampleRate, channels); err != nil {
		return err
	}

	if path, lookErr := exec.LookPath("ffmpeg"); lookErr == nil {
		cmd := exec.Command(path, "-y", "-loglevel", "error", "-i", tmpPath, dest)
		if out, runErr := cmd.CombinedOutput(); runErr != nil {
			return fmt.Errorf("ffmpeg encode failed: %v: %s", runErr, out)
		}
		return nil
	}
	if path, lookErr := exec.LookPath("lame"); lookErr == nil {
		cmd := exec.Command(path, "--quiet", tmpPath, dest)
		if out, runErr := cmd.CombinedOutput(); runErr != nil {
			return fmt.Errorf("lame encode failed: %v: %s", runErr, out)
		}
		return nil
	}
	return errors.New("mp3 export needs ffmpeg or lame on PATH")
}
