package audio

import (
	"sync"
	"time"

	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

// SpeakerBufferSize is the device-side latency.
const SpeakerBufferSize = 250 * time.Millisecond

// Device is an output that pulls samples from the streamers it plays. Lock
// excludes pulls, so a streamer's state may be changed safely while held.
type Device interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// SpeakerDevice is the system audio output through beep's speaker package.
type SpeakerDevice struct {
	mu          sync.Mutex
	initialized bool
	rate        beep.SampleRate
}

func NewSpeakerDevice() *SpeakerDevice {
	return &SpeakerDevice{}
}

// Init opens the output once per sample rate. Failures are Device errors.
func (d *SpeakerDevice) Init(rate beep.SampleRate, bufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.rate == rate {
		return nil
	}
	if d.initialized {
		speaker.Close()
	}

	log.Debug().Msgf("Initializing audio output (sample rate: %d Hz)...", rate)
	if err := speaker.Init(rate, bufferSize); err != nil {
		d.initialized = false
		return fault.Wrap(fault.Device, err, "failed to initialize audio output")
	}
	d.initialized = true
	d.rate = rate
	return nil
}

func (d *SpeakerDevice) Play(s beep.Streamer) {
	speaker.Play(s)
}

func (d *SpeakerDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		speaker.Clear()
	}
}

func (d *SpeakerDevice) Lock() {
	speaker.Lock()
}

func (d *SpeakerDevice) Unlock() {
	speaker.Unlock()
}

// Close releases the output.
func (d *SpeakerDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		speaker.Close()
		d.initialized = false
	}
}
