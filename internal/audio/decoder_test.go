package audio

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/glebovdev/somafm-player/internal/audio/audiotest"
	"github.com/glebovdev/somafm-player/internal/fault"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func drain(t *testing.T, d *Decoder, frameSize int) ([]int, [][2]float64) {
	t.Helper()
	var sizes []int
	var all [][2]float64
	frame := make([][2]float64, frameSize)
	for i := 0; i < 10000; i++ {
		n, err := d.Next(frame)
		if errors.Is(err, io.EOF) {
			if n != 0 {
				t.Fatalf("Next() returned %d samples with io.EOF", n)
			}
			return sizes, all
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		sizes = append(sizes, n)
		all = append(all, frame[:n]...)
	}
	t.Fatal("decoder never reached end of stream")
	return nil, nil
}

func TestDecodeWAVFlushesPartialFrame(t *testing.T) {
	d, err := Decode(bytes.NewReader(audiotest.WAV(44100, 3000, 0.25)), DefaultSampleRate)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer d.Close()

	if d.Format != FormatWAV || d.Rate != DefaultSampleRate {
		t.Errorf("Format = %s, Rate = %d", d.Format, d.Rate)
	}

	sizes, samples := drain(t, d, 1024)
	if len(samples) != 3000 {
		t.Fatalf("decoded %d samples, want 3000 (frames %v)", len(samples), sizes)
	}
	if last := sizes[len(sizes)-1]; last != 3000%1024 {
		t.Errorf("last frame = %d samples, want %d", last, 3000%1024)
	}
	for i, s := range samples {
		if !near(s[0], 0.25) || !near(s[1], 0.25) {
			t.Fatalf("sample %d = %v, want 0.25", i, s)
		}
	}

	if n, err := d.Next(make([][2]float64, 16)); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Next() after end = %d, %v; want 0, io.EOF", n, err)
	}
}

func TestDecodeWAVResamples(t *testing.T) {
	d, err := Decode(bytes.NewReader(audiotest.WAV(22050, 2205, 0.5)), DefaultSampleRate)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer d.Close()

	if d.Source.SampleRate != 22050 {
		t.Errorf("Source.SampleRate = %d", d.Source.SampleRate)
	}

	_, samples := drain(t, d, 512)
	if len(samples) < 4300 || len(samples) > 4500 {
		t.Errorf("decoded %d samples, want about 4410", len(samples))
	}
	mid := samples[len(samples)/2]
	if !near(mid[0], 0.5) {
		t.Errorf("middle sample = %v, want 0.5", mid)
	}
}

func TestDecodeTruncatedWAV(t *testing.T) {
	full := audiotest.WAV(44100, 1000, 0.25)
	// Header claims 1000 frames; only 100 arrive.
	truncated := full[:44+100*4]

	d, err := Decode(bytes.NewReader(truncated), DefaultSampleRate)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer d.Close()

	_, samples := drain(t, d, 64)
	if len(samples) != 100 {
		t.Errorf("decoded %d samples, want 100", len(samples))
	}
}

func TestDecodeMP3SkipsLeadingGarbage(t *testing.T) {
	const frames = 60

	tests := []struct {
		name       string
		junk       int
		wantOffset int
	}{
		{"clean", 0, 0},
		{"joined mid stream", 150, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(bytes.Repeat([]byte{0x5A}, tt.junk), audiotest.SilentMP3(frames)...)

			_, offset, err := Detect(data[:ProbeSize])
			if err != nil || offset != tt.wantOffset {
				t.Fatalf("Detect() offset = %d, err = %v; want %d", offset, err, tt.wantOffset)
			}

			d, err := Decode(bytes.NewReader(data), DefaultSampleRate)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			defer d.Close()

			if d.Format != FormatMP3 {
				t.Errorf("Format = %s, want MP3", d.Format)
			}
			if d.Source.SampleRate != 44100 {
				t.Errorf("source rate = %d, want 44100", d.Source.SampleRate)
			}

			_, samples := drain(t, d, DefaultFrameSize)
			if want := frames * audiotest.MP3FrameSamples; len(samples) != want {
				t.Errorf("decoded %d samples, want %d", len(samples), want)
			}
		})
	}
}

func TestDecodeRejectsUnsupported(t *testing.T) {
	tests := map[string][]byte{
		"garbage": bytes.Repeat([]byte("not audio "), 100),
		"aac":     append([]byte{0xFF, 0xF1, 0x50, 0x80}, make([]byte, 64)...),
		"ogg":     append([]byte("OggS"), make([]byte, 64)...),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data), DefaultSampleRate)
			if fault.KindOf(err) != fault.Format {
				t.Errorf("Decode() error = %v, want format error", err)
			}
		})
	}
}

func TestDecodeEmptyStream(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil), DefaultSampleRate)
	if fault.KindOf(err) != fault.Network {
		t.Errorf("Decode(empty) error = %v, want network error", err)
	}
}

func TestDecodeKeepsReaderErrorKind(t *testing.T) {
	pr, pw := io.Pipe()
	pw.CloseWithError(fault.Newf(fault.Network, "connection reset"))

	_, err := Decode(pr, DefaultSampleRate)
	if fault.KindOf(err) != fault.Network {
		t.Errorf("Decode() error = %v, want network error from the reader", err)
	}
}
