// Package audio covers PCM file I/O and the output device: WAV
// encode/decode plus a live speaker sink and a timed simulated sink for
// headless operation.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a whole WAV stream into 16-bit PCM samples.
func DecodeWAV(r io.ReadSeeker) (samples []int16, sampleRate, channels int, err error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, 0, 0, errors.New("not a valid WAV stream")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode WAV: %w", err)
	}
	samples = make([]int16, len(buf.Data))
	shift := 0
	if d.BitDepth > 16 {
		shift = int(d.BitDepth) - 16
	}
	for i, v := range buf.Data {
		if shift > 0 {
			v >>= shift
		}
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		samples[i] = int16(v)
	}
	return samples, int(d.SampleRate), int(d.NumChans), nil
}

// DecodeWAVFile is DecodeWAV over a file on disk.
func DecodeWAVFile(path string) ([]int16, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

// EncodeWAV writes 16-bit PCM samples as an uncompressed WAV stream.
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid WAV format: rate=%d channels=%d", sampleRate, channels)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode WAV: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile encodes samples to a WAV file at path.
func WriteWAVFile(path string, samples []int16, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, samples, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
