// Package player owns playback: it turns commands into stream sessions and
// publishes the resulting state. All state lives in a single goroutine; other
// goroutines talk to it through the command queue and read it through
// snapshots.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/glebovdev/somafm-player/internal/audio"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/glebovdev/somafm-player/internal/icy"
	"github.com/glebovdev/somafm-player/internal/metrics"
	"github.com/glebovdev/somafm-player/internal/stream"
	"github.com/gopxl/beep/v2"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

const (
	CommandQueueSize    = 32
	DefaultVolumeSettle = 500 * time.Millisecond
	// CustomChannelID names a session started from a bare stream URL.
	CustomChannelID = "custom"

	eventQueueSize   = 64
	subscriberBuffer = 16
)

var (
	ErrClosed         = errors.New("player closed")
	ErrInvalidCommand = errors.New("invalid command")
)

// Directory resolves a channel to its stream URLs, most preferred first.
type Directory interface {
	StreamURLs(ctx context.Context, channelID string) ([]string, error)
}

// VolumeStore persists the volume once changes settle.
type VolumeStore interface {
	SaveVolume(volume int) error
}

type Options struct {
	Connector stream.Connector
	Device    audio.Device
	Directory Directory
	Store     VolumeStore
	Metrics   *metrics.Metrics

	Volume       int
	Playback     config.Playback
	VolumeSettle time.Duration
}

// Controller is the playback state machine. Create it with New and release it
// with Close.
type Controller struct {
	opts     Options
	playback config.Playback

	cmds      chan Command
	events    chan event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	snap       atomic.Pointer[Snapshot]
	activeSink atomic.Pointer[audio.Sink]
	subMu      sync.Mutex
	subs       map[int]chan Snapshot
	nextSub    int
	subsClosed bool

	// Owned by the loop goroutine.
	state         State
	channelID     string
	requestedURL  string
	streamURL     string
	urls          []string
	err           *fault.Error
	now           NowPlaying
	volume        int
	volumeDirty   bool
	persistVolume func(func())
	attempt       int
	backoff       *backoff.Backoff
	retry         *time.Timer
	retryC        <-chan time.Time
	retryAt       time.Time
	info          stream.Info
	format        string
	sessionStart  time.Time
	leaks         int
	seq           uint64
	gen           uint64
	sess          *session
}

// New starts a controller in the Stopped state. A zero RetryBudget disables
// reconnection; other unset playback settings take their defaults.
func New(opts Options) *Controller {
	pb := opts.Playback.WithDefaults()
	if opts.Connector == nil {
		opts.Connector = stream.NewHTTPConnector(config.UserAgent(), pb.ReadTimeout)
	}
	if opts.Device == nil {
		opts.Device = audio.NewSpeakerDevice()
	}
	if opts.VolumeSettle <= 0 {
		opts.VolumeSettle = DefaultVolumeSettle
	}

	c := &Controller{
		opts:     opts,
		playback: pb,
		cmds:     make(chan Command, CommandQueueSize),
		events:   make(chan event, eventQueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Snapshot),
		state:    StateStopped,
		volume:   config.ClampVolume(opts.Volume),
		backoff: &backoff.Backoff{
			Min:    pb.BackoffMin,
			Max:    pb.BackoffMax,
			Factor: 2,
		},
		persistVolume: debounce.New(opts.VolumeSettle),
	}
	opts.Metrics.SetVolume(c.volume)
	opts.Metrics.SetState(c.state.String(), stateNames())
	c.publish()

	go c.loop()
	return c
}

func stateNames() []string {
	names := make([]string, len(allStates))
	for i, s := range allStates {
		names[i] = s.String()
	}
	return names
}

// Send queues a command. It blocks while the queue is full and fails once the
// controller is closed.
func (c *Controller) Send(cmd Command) error {
	switch cmd := cmd.(type) {
	case nil:
		return ErrInvalidCommand
	case Play:
		if cmd.ChannelID == "" && cmd.URL == "" {
			return fmt.Errorf("%w: play needs a channel or a URL", ErrInvalidCommand)
		}
	}

	select {
	case <-c.quit:
		return ErrClosed
	default:
	}

	select {
	case c.cmds <- cmd:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// TogglePause pauses a playing stream or resumes a paused one.
func (c *Controller) TogglePause() error {
	switch c.Snapshot().State {
	case StatePlaying:
		return c.Send(Pause{})
	case StatePaused:
		return c.Send(Resume{})
	}
	return nil
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Subscribe returns a channel that receives every published snapshot,
// starting with the current one. A slow reader loses intermediate snapshots
// but always gets the latest. The cancel func stops delivery. After Close the
// channel holds only the final snapshot and is already closed.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	c.subMu.Lock()
	ch <- *c.snap.Load()
	if c.subsClosed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// BufferHealth returns how full the active sink's queue is, in percent.
func (c *Controller) BufferHealth() int {
	if sink := c.activeSink.Load(); sink != nil {
		return sink.Fill()
	}
	return 0
}

// Close stops playback, ends the loop and closes all subscriptions.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case cmd := <-c.cmds:
			c.handleCommand(cmd)
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-c.retryC:
			c.retryC = nil
			c.retry = nil
			c.retryAt = time.Time{}
			if c.state == StateReconnecting {
				log.Debug().Msgf("Reconnecting to %s (attempt %d/%d)", c.channelID, c.attempt, c.playback.RetryBudget)
				c.startSession()
			}
		case <-c.quit:
			c.shutdown()
			return
		}
		c.publish()
	}
}

func (c *Controller) handleCommand(cmd Command) {
	switch cmd := cmd.(type) {
	case Play:
		c.play(cmd)
	case Pause:
		if c.state != StatePlaying {
			log.Debug().Msgf("Pause ignored in state %s", c.state)
			return
		}
		c.sess.sink.SetPaused(true)
		c.setState(StatePaused)
	case Resume:
		c.resume()
	case SetVolume:
		c.setVolume(cmd.Level)
	case Stop:
		c.stop()
	}
}

func (c *Controller) resume() {
	if c.state != StatePaused {
		log.Debug().Msgf("Resume ignored in state %s", c.state)
		return
	}
	c.sess.sink.SetPaused(false)
	c.setState(StatePlaying)
}

func (c *Controller) play(cmd Play) {
	if cmd.ChannelID == "" {
		cmd.ChannelID = CustomChannelID
	}

	if cmd.ChannelID == c.channelID && cmd.URL == c.requestedURL {
		switch c.state {
		case StateBuffering, StatePlaying, StateReconnecting:
			log.Debug().Msgf("Already on %s", cmd.ChannelID)
			return
		case StatePaused:
			c.resume()
			return
		}
	}

	if c.state != StateStopped {
		c.reset()
		c.setState(StateStopped)
		c.publish()
	}

	log.Debug().Msgf("Playing channel %s", cmd.ChannelID)
	c.channelID = cmd.ChannelID
	c.requestedURL = cmd.URL
	c.urls = nil
	if cmd.URL != "" {
		c.urls = []string{cmd.URL}
	}
	c.sessionStart = time.Now()
	c.setState(StateBuffering)
	c.startSession()
}

func (c *Controller) stop() {
	c.reset()
	c.setState(StateStopped)
}

// reset tears down the session and clears everything tied to it.
func (c *Controller) reset() {
	c.teardown()
	c.now = NowPlaying{}
	c.err = nil
	c.attempt = 0
	c.backoff.Reset()
	c.info = stream.Info{}
	c.format = ""
	c.streamURL = ""
	c.sessionStart = time.Time{}
}

func (c *Controller) setVolume(level int) {
	v := config.ClampVolume(level)
	c.volume = v
	if c.sess != nil {
		c.sess.sink.SetVolume(v)
	}
	c.opts.Metrics.SetVolume(v)

	if store := c.opts.Store; store != nil {
		c.volumeDirty = true
		c.persistVolume(func() {
			if err := store.SaveVolume(v); err != nil {
				log.Warn().Err(err).Msg("Failed to persist volume")
			}
		})
	}
}

// startSession opens a new sink and runs a session for the current channel.
func (c *Controller) startSession() {
	sink, err := audio.NewSink(c.opts.Device, audio.SinkOptions{
		Rate:        beep.SampleRate(c.playback.SampleRate),
		QueueFrames: c.playback.QueueFrames,
		Volume:      c.volume,
	})
	if err != nil {
		c.fail(err)
		return
	}

	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:       c.gen,
		channelID: c.channelID,
		urls:      append([]string(nil), c.urls...),
		attempt:   c.attempt,
		ctx:       ctx,
		cancel:    cancel,
		sink:      sink,
		done:      make(chan struct{}),
	}
	c.sess = s
	c.activeSink.Store(sink)
	go c.run(s)
}

// teardown cancels the active session and closes its sink before waiting for
// it, so nothing it decoded can reach the device. The wait is bounded by the
// cleanup timeout.
func (c *Controller) teardown() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
		c.retryC = nil
		c.retryAt = time.Time{}
	}

	s := c.sess
	if s == nil {
		return
	}
	c.sess = nil
	c.activeSink.Store(nil)

	s.cancel()
	s.sink.Close()
	c.opts.Metrics.AddUnderruns(s.sink.Underruns())

	select {
	case <-s.done:
	case <-time.After(c.playback.CleanupTimeout):
		c.leaks++
		c.opts.Metrics.IncLeaks()
		log.Warn().Str("channel", s.channelID).Msgf("Session did not stop within %v, continuing without it", c.playback.CleanupTimeout)
	}
}

func (c *Controller) fail(err error) {
	c.teardown()
	c.err = fault.WithContext(err, c.channelID, c.attempt)
	c.now = NowPlaying{}
	log.Error().Err(c.err).Msg("Playback failed")
	c.setState(StateFailed)
}

func (c *Controller) handleEvent(ev event) {
	if c.sess == nil || ev.gen != c.sess.gen {
		return
	}

	switch ev.kind {
	case evResolved:
		c.urls = ev.urls
	case evConnected:
		c.info = ev.info
		c.streamURL = ev.url
		if c.state == StateReconnecting {
			c.setState(StateBuffering)
		}
	case evDecoding:
		c.format = ev.format
	case evFramesReady:
		if c.state == StateBuffering {
			c.setState(StatePlaying)
			c.attempt = 0
			c.backoff.Reset()
			c.err = nil
		}
	case evMetadata:
		c.updateNowPlaying(ev.block)
	case evFailed:
		c.sessionFailed(ev.err)
	}
}

func (c *Controller) updateNowPlaying(b icy.Block) {
	if b.Title == "" {
		return
	}
	artist, song := icy.SplitTitle(b.Title)
	c.now = NowPlaying{
		ChannelID: c.channelID,
		Title:     b.Title,
		Artist:    artist,
		Song:      song,
		UpdatedAt: time.Now(),
	}
	log.Debug().Msgf("Now playing on %s: %s", c.channelID, b.Title)
}

func (c *Controller) sessionFailed(err error) {
	if !fault.Recoverable(err) {
		c.fail(err)
		return
	}

	c.teardown()
	c.attempt++
	c.err = fault.WithContext(err, c.channelID, c.attempt)
	if c.attempt > c.playback.RetryBudget {
		log.Warn().Err(err).Msgf("Giving up on %s after %d attempts", c.channelID, c.attempt-1)
		c.fail(err)
		return
	}

	c.opts.Metrics.IncReconnects()
	delay := c.backoff.Duration()
	log.Warn().Err(err).Msgf("Stream interrupted, retrying in %v (attempt %d/%d)", delay, c.attempt, c.playback.RetryBudget)

	c.setState(StateReconnecting)
	c.retryAt = time.Now().Add(delay)
	c.retry = time.NewTimer(delay)
	c.retryC = c.retry.C
}

func (c *Controller) shutdown() {
	c.reset()
	c.setState(StateStopped)

	if c.volumeDirty && c.opts.Store != nil {
		if err := c.opts.Store.SaveVolume(c.volume); err != nil {
			log.Warn().Err(err).Msg("Failed to persist volume")
		}
	}

	c.publish()

	c.subMu.Lock()
	c.subsClosed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subMu.Unlock()
}

func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}
	if !c.state.CanTransition(next) {
		log.Error().Msgf("Illegal state transition %s -> %s", c.state, next)
		return
	}
	log.Debug().Msgf("Player state: %s -> %s", c.state, next)
	c.state = next
	c.opts.Metrics.SetState(next.String(), stateNames())
}

func (c *Controller) publish() {
	c.seq++
	snap := Snapshot{
		Seq:          c.seq,
		State:        c.state,
		ChannelID:    c.channelID,
		URL:          c.streamURL,
		Err:          c.err,
		Volume:       c.volume,
		Attempt:      c.attempt,
		MaxAttempts:  c.playback.RetryBudget,
		RetryAt:      c.retryAt,
		Stream:       c.info,
		Format:       c.format,
		SessionStart: c.sessionStart,
		LeakWarnings: c.leaks,
	}
	if c.state.HasNowPlaying() {
		snap.NowPlaying = c.now
	}
	c.snap.Store(&snap)

	c.subMu.Lock()
	for _, ch := range c.subs {
		deliver(ch, snap)
	}
	c.subMu.Unlock()
}

// deliver replaces the oldest pending snapshot when the subscriber is behind.
func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
