package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	DefaultFrameSize  = 1024
	ResampleQuality   = 4
)

// Decoder produces stereo PCM at a fixed sample rate from a compressed stream.
type Decoder struct {
	Format Format
	Source beep.Format
	Rate   beep.SampleRate

	src  beep.StreamSeekCloser
	out  beep.Streamer
	done bool
}

// Decode probes r, opens the matching decoder and resamples to target when the
// stream's own rate differs. Probe failures are Format errors; a read error
// during the probe is returned as is so a network failure keeps its kind.
func Decode(r io.Reader, target beep.SampleRate) (*Decoder, error) {
	if target <= 0 {
		target = DefaultSampleRate
	}

	br := bufio.NewReaderSize(r, ProbeSize)
	peek, err := br.Peek(ProbeSize)
	if len(peek) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, fault.Newf(fault.Network, "stream ended before any audio data")
		}
		return nil, fmt.Errorf("probing stream: %w", err)
	}

	format, offset, err := Detect(peek)
	if err != nil {
		return nil, err
	}
	if _, err := br.Discard(offset); err != nil {
		return nil, fmt.Errorf("skipping to first frame: %w", err)
	}

	var (
		src    beep.StreamSeekCloser
		srcFmt beep.Format
	)
	switch format {
	case FormatMP3:
		src, srcFmt, err = mp3.Decode(io.NopCloser(br))
	case FormatWAV:
		src, srcFmt, err = wav.Decode(fullReader{br})
	}
	if err != nil {
		return nil, fault.Wrap(fault.Format, err, "opening "+format.String()+" decoder")
	}

	log.Debug().Msgf("Decoding %s stream: %d Hz, %d channels", format.describe(offset), srcFmt.SampleRate, srcFmt.NumChannels)

	d := &Decoder{
		Format: format,
		Source: srcFmt,
		Rate:   target,
		src:    src,
		out:    src,
	}
	if srcFmt.SampleRate != target {
		d.out = beep.Resample(ResampleQuality, srcFmt.SampleRate, target, src)
	}
	return d, nil
}

// Next fills frame with decoded samples. At the end of the stream it returns
// the remaining partial frame first and io.EOF on the following call. A
// truncated final frame is not an error. A decode error is returned together
// with the samples decoded before it.
func (d *Decoder) Next(frame [][2]float64) (int, error) {
	if d.done {
		return 0, io.EOF
	}

	filled := 0
	for filled < len(frame) {
		n, ok := d.out.Stream(frame[filled:])
		filled += n
		if !ok || n == 0 {
			d.done = true
			break
		}
	}

	if !d.done {
		return filled, nil
	}
	if err := d.src.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return filled, err
	}
	if filled > 0 {
		return filled, nil
	}
	return 0, io.EOF
}

// Close releases the underlying decoder.
func (d *Decoder) Close() error {
	return d.src.Close()
}

// fullReader hands out whole reads so PCM frames are never split across the
// short reads a pipe produces.
type fullReader struct {
	r io.Reader
}

func (f fullReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(f.r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}
