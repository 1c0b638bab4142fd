// Package audiotest provides a pull-driven fake output device and WAV and MP3
// fixtures for exercising the playback pipeline without sound hardware.
package audiotest

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// Device mixes its streamers only when Pull is called, so tests control the
// pace of playback.
type Device struct {
	InitErr error

	mu        sync.Mutex
	rate      beep.SampleRate
	inits     int
	streamers []beep.Streamer
}

func (d *Device) Init(rate beep.SampleRate, bufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.InitErr != nil {
		return d.InitErr
	}
	d.rate = rate
	d.inits++
	return nil
}

func (d *Device) Play(s beep.Streamer) {
	d.mu.Lock()
	d.streamers = append(d.streamers, s)
	d.mu.Unlock()
}

func (d *Device) Clear() {
	d.mu.Lock()
	d.streamers = nil
	d.mu.Unlock()
}

func (d *Device) Lock()   { d.mu.Lock() }
func (d *Device) Unlock() { d.mu.Unlock() }

// Rate returns the sample rate of the last successful Init.
func (d *Device) Rate() beep.SampleRate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Streamers returns how many streamers are attached.
func (d *Device) Streamers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streamers)
}

// Pull mixes n samples from every attached streamer the way the speaker does,
// dropping streamers that report they are finished.
func (d *Device) Pull(n int) [][2]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([][2]float64, n)
	buf := make([][2]float64, n)
	kept := d.streamers[:0]
	for _, s := range d.streamers {
		clear(buf)
		got, ok := s.Stream(buf)
		for i := 0; i < got; i++ {
			out[i][0] += buf[i][0]
			out[i][1] += buf[i][1]
		}
		if ok {
			kept = append(kept, s)
		}
	}
	d.streamers = kept
	return out
}

// Frame returns n samples all set to (left, right).
func Frame(n int, left, right float64) [][2]float64 {
	f := make([][2]float64, n)
	for i := range f {
		f[i] = [2]float64{left, right}
	}
	return f
}

// WAVHeader returns a 44-byte header for 16-bit stereo PCM. dataBytes is
// written as the data chunk size; pass a large value for an endless stream.
func WAVHeader(rate int, dataBytes uint32) []byte {
	const channels, bits = 2, 16
	blockAlign := channels * bits / 8

	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], 36+dataBytes)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], channels)
	binary.LittleEndian.PutUint32(h[24:], uint32(rate))
	binary.LittleEndian.PutUint32(h[28:], uint32(rate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], bits)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], dataBytes)
	return h
}

// PCM returns frames samples of 16-bit stereo PCM with constant channel values.
func PCM(frames int, left, right float64) []byte {
	l, r := toInt16(left), toInt16(right)
	b := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(b[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(b[i*4+2:], uint16(r))
	}
	return b
}

// WAV returns a complete WAV file of frames samples at a constant level.
func WAV(rate, frames int, level float64) []byte {
	pcm := PCM(frames, level, level)
	return append(WAVHeader(rate, uint32(len(pcm))), pcm...)
}

// MP3FrameHeader is MPEG-1 Layer III, 128 kbps, 44.1 kHz, no padding.
var MP3FrameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

const (
	MP3FrameBytes   = 417
	MP3FrameSamples = 1152
)

// SilentMP3 returns frames consecutive MP3 frames with empty side info and
// main data, which decode to silence.
func SilentMP3(frames int) []byte {
	b := make([]byte, frames*MP3FrameBytes)
	for i := 0; i < frames; i++ {
		copy(b[i*MP3FrameBytes:], MP3FrameHeader)
	}
	return b
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}
