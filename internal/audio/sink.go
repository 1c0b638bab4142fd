package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog/log"
)

const DefaultQueueFrames = 64

// ErrSinkClosed is returned by Offer once the sink has been closed.
var ErrSinkClosed = errors.New("sink closed")

// SinkOptions configures a Sink.
type SinkOptions struct {
	Rate        beep.SampleRate
	QueueFrames int
	Volume      int
}

// Sink is the playback end of one session. Offer blocks while the frame queue is
// full, which is how a slow device holds back the decoder and the network
// reader. The device pulls through a gain stage and a pause control:
//
//	queue -> effects.Gain -> beep.Ctrl -> device
type Sink struct {
	device Device
	queue  chan [][2]float64
	closed chan struct{}
	once   sync.Once

	src  *queueStreamer
	gain *effects.Gain
	ctrl *beep.Ctrl

	offered   atomic.Int64
	underruns atomic.Int64
	isClosed  atomic.Bool
}

// NewSink initializes the device and starts playing from an empty queue.
func NewSink(device Device, opts SinkOptions) (*Sink, error) {
	if opts.Rate <= 0 {
		opts.Rate = DefaultSampleRate
	}
	if opts.QueueFrames <= 0 {
		opts.QueueFrames = DefaultQueueFrames
	}

	if err := device.Init(opts.Rate, opts.Rate.N(SpeakerBufferSize)); err != nil {
		return nil, err
	}

	s := &Sink{
		device: device,
		queue:  make(chan [][2]float64, opts.QueueFrames),
		closed: make(chan struct{}),
	}
	s.src = &queueStreamer{sink: s}
	s.gain = &effects.Gain{Streamer: s.src, Gain: gainFor(opts.Volume)}
	s.ctrl = &beep.Ctrl{Streamer: s.gain}

	device.Play(s.ctrl)
	return s, nil
}

// gainFor converts a 0-100 volume to the effects.Gain offset, which scales
// samples by 1+Gain.
func gainFor(volume int) float64 {
	volume = max(0, min(100, volume))
	return float64(volume)/100 - 1
}

// Offer queues a copy of frame, blocking while the queue is full.
func (s *Sink) Offer(ctx context.Context, frame [][2]float64) error {
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}

	cp := make([][2]float64, len(frame))
	copy(cp, frame)

	select {
	case s.queue <- cp:
		s.offered.Add(1)
		return nil
	case <-s.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetVolume applies a 0-100 volume from the next pulled sample on.
func (s *Sink) SetVolume(volume int) {
	s.device.Lock()
	s.gain.Gain = gainFor(volume)
	s.device.Unlock()
}

// Gain returns the linear factor currently applied to samples.
func (s *Sink) Gain() float64 {
	s.device.Lock()
	defer s.device.Unlock()
	return 1 + s.gain.Gain
}

// SetPaused stops or resumes consumption from the queue. While paused the
// device receives silence and the queue fills up to its capacity.
func (s *Sink) SetPaused(paused bool) {
	s.device.Lock()
	s.ctrl.Paused = paused
	s.device.Unlock()
}

// Fill returns queue occupancy as a percentage.
func (s *Sink) Fill() int {
	if cap(s.queue) == 0 {
		return 0
	}
	return len(s.queue) * 100 / cap(s.queue)
}

// Offered returns how many frames were accepted.
func (s *Sink) Offered() int64 {
	return s.offered.Load()
}

// Underruns returns how many device pulls found the queue empty after playback began.
func (s *Sink) Underruns() int64 {
	return s.underruns.Load()
}

// Close detaches the sink from the device and discards queued frames. Once
// Close returns, no sample offered to this sink reaches the device.
func (s *Sink) Close() {
	s.once.Do(func() {
		s.isClosed.Store(true)
		close(s.closed)

		s.device.Lock()
		s.ctrl.Streamer = nil
		s.src.pending = nil
		s.device.Unlock()

		dropped := 0
	drain:
		for {
			select {
			case <-s.queue:
				dropped++
			default:
				break drain
			}
		}
		log.Debug().Int("dropped_frames", dropped).Msg("Playback sink closed")
	})
}

// queueStreamer feeds the device from the frame queue without ever blocking
// the device; an empty queue yields silence.
type queueStreamer struct {
	sink    *Sink
	pending [][2]float64
	started bool
}

func (q *queueStreamer) Stream(samples [][2]float64) (int, bool) {
	if q.sink.isClosed.Load() {
		return 0, false
	}

	filled := 0
	for filled < len(samples) {
		if len(q.pending) == 0 {
			select {
			case f := <-q.sink.queue:
				q.pending = f
				q.started = true
			default:
			}
			if len(q.pending) == 0 {
				break
			}
		}
		n := copy(samples[filled:], q.pending)
		q.pending = q.pending[n:]
		filled += n
	}

	if filled < len(samples) && q.started {
		q.sink.underruns.Add(1)
	}
	clear(samples[filled:])
	return len(samples), true
}

func (q *queueStreamer) Err() error {
	return nil
}
