// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Format identifies a container recognised by Decode.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("audio contains no samples")
)

// Sniff guesses the container from the leading bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync.
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// Decode decodes a complete WAV or MP3 file. Sources with more than two
// channels are folded down to mono.
func Decode(data []byte) (*Clip, error) {
	var (
		clip *Clip
		err  error
	)
	switch Sniff(data) {
	case FormatWAV:
		clip, err = decodeWAV(data)
	case FormatMP3:
		clip, err = decodeMP3(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if clip.Frames() == 0 {
		return nil, ErrEmptyAudio
	}
	if clip.Channels > 2 {
		mono := clip.Mono()
		samples := make([]float32, len(mono))
		for i, v := range mono {
			samples[i] = float32(v)
		}
		clip.Samples = samples
		clip.Channels = 1
	}
	return clip, nil
}

func decodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %w", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrEmptyAudio
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
	}

	samples := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit PCM is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := 1 / float64(int64(1)<<(bitDepth-1))
		for i, v := range buf.Data {
			samples[i] = float32(float64(v) * scale)
		}
	}

	return &Clip{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}, nil
}

// decodeMP3 decodes to the 16-bit little-endian stereo stream go-mp3 produces.
func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid mp3 stream: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 frames: %w", err)
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32768
	}

	return &Clip{
		SampleRate: dec.SampleRate(),
		Channels:   2,
		Samples:    samples,
	}, nil
}
