package audio

import (
	"bytes"
	"context"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"

	"github.com/lixenwraith/clicktrack/constant"
)

// Decoder turns raw bytes into a device-native buffer
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*beep.Buffer, error)
}

// WAVDecoder decodes RIFF/WAVE data and resamples it to the device rate
type WAVDecoder struct {
	rate    beep.SampleRate
	quality int
	chunk   int
}

// NewWAVDecoder creates a decoder producing buffers at rate
func NewWAVDecoder(rate beep.SampleRate) *WAVDecoder {
	return &WAVDecoder{
		rate:    rate,
		quality: constant.ResampleQuality,
		chunk:   constant.DecodeChunkFrames,
	}
}

// Decode parses data, checking ctx between chunks
// Empty input, malformed data and zero-length audio all fail
func (d *WAVDecoder) Decode(ctx context.Context, data []byte) (*beep.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "wav")
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	if format.SampleRate != d.rate {
		source = beep.Resample(d.quality, format.SampleRate, d.rate, streamer)
	}

	buf := beep.NewBuffer(beep.Format{
		SampleRate:  d.rate,
		NumChannels: format.NumChannels,
		Precision:   format.Precision,
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		before := buf.Len()
		buf.Append(beep.Take(d.chunk, source))
		if buf.Len()-before < d.chunk {
			break
		}
	}

	if err := streamer.Err(); err != nil {
		return nil, errors.Wrap(err, "wav stream")
	}
	if buf.Len() == 0 {
		return nil, errors.New("decoded buffer is empty")
	}
	return buf, nil
}
