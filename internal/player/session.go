package player

import (
	"context"
	"errors"
	"io"

	"github.com/glebovdev/somafm-player/internal/audio"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/glebovdev/somafm-player/internal/icy"
	"github.com/glebovdev/somafm-player/internal/stream"
	"github.com/gopxl/beep/v2"
)

type eventKind int

const (
	evResolved eventKind = iota
	evConnected
	evDecoding
	evFramesReady
	evMetadata
	evFailed
)

// event is posted by a session goroutine to the loop. gen identifies the
// session; events from a replaced session are dropped.
type event struct {
	gen    uint64
	kind   eventKind
	urls   []string
	url    string
	info   stream.Info
	format string
	block  icy.Block
	err    error
}

type session struct {
	gen       uint64
	channelID string
	urls      []string
	attempt   int
	ctx       context.Context
	cancel    context.CancelFunc
	sink      *audio.Sink
	done      chan struct{}
}

// pump carries the network side of a session: stream bytes go through the
// ICY demuxer into a pipe the decoder reads from.
type pump struct {
	done chan struct{}
	err  error
}

func (c *Controller) run(s *session) {
	defer close(s.done)

	err := c.stream(s)
	if err != nil && s.ctx.Err() == nil {
		c.post(s, event{kind: evFailed, err: err})
	}
}

// post delivers an event unless the session is cancelled first.
func (c *Controller) post(s *session, ev event) {
	ev.gen = s.gen
	select {
	case c.events <- ev:
	case <-s.ctx.Done():
	}
}

func (c *Controller) resolve(s *session) ([]string, error) {
	if len(s.urls) > 0 {
		return s.urls, nil
	}
	if c.opts.Directory == nil {
		return nil, fault.Newf(fault.Fatal, "no stream URL for channel %s", s.channelID)
	}

	urls, err := c.opts.Directory.StreamURLs(s.ctx, s.channelID)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, s.ctx.Err()
		}
		return nil, fault.Wrap(fault.Fatal, err, "resolving channel")
	}
	if len(urls) == 0 {
		return nil, fault.Newf(fault.Fatal, "channel %s has no streams", s.channelID)
	}
	c.post(s, event{kind: evResolved, urls: urls})
	return urls, nil
}

// stream runs one session to completion and returns why it ended.
func (c *Controller) stream(s *session) error {
	urls, err := c.resolve(s)
	if err != nil {
		return err
	}
	url := urls[s.attempt%len(urls)]

	conn, err := c.opts.Connector.Connect(s.ctx, url)
	if err != nil {
		return err
	}
	c.post(s, event{kind: evConnected, url: url, info: conn.Info})

	pr, pw := io.Pipe()
	demux := icy.NewDemuxer(conn.Info.MetaInt, pw, func(b icy.Block) {
		c.post(s, event{kind: evMetadata, block: b})
	})

	p := &pump{done: make(chan struct{})}
	go func() {
		p.err = conn.Pump(demux)
		close(p.done)
		pw.CloseWithError(p.err)
	}()
	defer func() {
		pr.Close()
		conn.Close()
		<-p.done

		stats := demux.Stats()
		c.opts.Metrics.AddBytes(conn.BytesRead())
		c.opts.Metrics.AddMetadata(stats.Blocks, stats.Dropped)
	}()

	dec, err := audio.Decode(pr, beep.SampleRate(c.playback.SampleRate))
	if err != nil {
		return p.explain(err)
	}
	defer dec.Close()
	c.post(s, event{kind: evDecoding, format: dec.Format.String()})

	frame := make([][2]float64, c.playback.FrameSize)
	ready := false
	for {
		n, err := dec.Next(frame)
		if n > 0 {
			if err := s.sink.Offer(s.ctx, frame[:n]); err != nil {
				return err
			}
			if !ready {
				ready = true
				c.post(s, event{kind: evFramesReady})
			}
		}
		if err != nil {
			return p.explain(err)
		}
	}
}

// explain picks the error that ended the session. A network failure seen by
// the pump wins over whatever the decoder made of the truncated input.
func (p *pump) explain(decodeErr error) error {
	select {
	case <-p.done:
		if p.err != nil && !errors.Is(p.err, io.ErrClosedPipe) {
			return p.err
		}
	default:
	}

	if errors.Is(decodeErr, io.EOF) {
		return fault.Newf(fault.Network, "stream ended")
	}
	if _, ok := fault.As(decodeErr); ok {
		return decodeErr
	}
	return fault.Wrap(fault.Format, decodeErr, "decoding stream")
}
