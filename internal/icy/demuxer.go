// Package icy separates ICY (Shoutcast/Icecast) in-band metadata from the
// audio bytes of a stream.
//
// With a metadata interval of N the body is a repeating sequence of N audio
// bytes, one length byte L, and L*16 bytes of metadata text. The Demuxer is a
// push state machine, so the framing is tracked across arbitrary chunk
// boundaries and a length byte or metadata block split between two reads is
// handled like any other.
package icy

import (
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// BlockUnit is the size multiplier of the metadata length byte.
const BlockUnit = 16

type demuxState int

const (
	stateAudio demuxState = iota
	stateLength
	stateMetadata
)

// Stats counts what a Demuxer has processed so far.
type Stats struct {
	AudioBytes int64
	Blocks     int64
	Dropped    int64
}

// Demuxer routes audio bytes to an io.Writer and parsed metadata blocks to a
// callback. It is not safe for concurrent use; a single stream reader owns it.
type Demuxer struct {
	interval int
	audio    io.Writer
	onBlock  func(Block)

	state     demuxState
	remaining int
	meta      []byte
	metaLen   int

	stats Stats
}

// NewDemuxer creates a demuxer for the given icy-metaint. An interval of 0
// disables metadata and every byte is forwarded as audio.
func NewDemuxer(interval int, audio io.Writer, onBlock func(Block)) *Demuxer {
	if interval < 0 {
		interval = 0
	}
	return &Demuxer{
		interval:  interval,
		audio:     audio,
		onBlock:   onBlock,
		state:     stateAudio,
		remaining: interval,
	}
}

// Interval returns the metadata interval the demuxer was created with.
func (d *Demuxer) Interval() int {
	return d.interval
}

// Remaining returns the number of audio bytes left before the next length byte.
func (d *Demuxer) Remaining() int {
	return d.remaining
}

// Stats returns a copy of the counters.
func (d *Demuxer) Stats() Stats {
	return d.stats
}

// Write consumes a chunk of the raw stream. It returns len(p) unless the audio
// writer fails, in which case the audio writer's error is returned.
func (d *Demuxer) Write(p []byte) (int, error) {
	if d.interval == 0 {
		n, err := d.audio.Write(p)
		d.stats.AudioBytes += int64(n)
		return n, err
	}

	consumed := 0
	for consumed < len(p) {
		switch d.state {
		case stateAudio:
			n := min(d.remaining, len(p)-consumed)
			w, err := d.audio.Write(p[consumed : consumed+n])
			d.stats.AudioBytes += int64(w)
			consumed += w
			d.remaining -= w
			if err != nil {
				return consumed, err
			}
			if d.remaining == 0 {
				d.state = stateLength
			}

		case stateLength:
			d.metaLen = int(p[consumed]) * BlockUnit
			consumed++
			if d.metaLen == 0 {
				d.resetAudio()
				continue
			}
			d.meta = d.meta[:0]
			d.state = stateMetadata

		case stateMetadata:
			n := min(d.metaLen-len(d.meta), len(p)-consumed)
			d.meta = append(d.meta, p[consumed:consumed+n]...)
			consumed += n
			if len(d.meta) == d.metaLen {
				d.emit()
				d.resetAudio()
			}
		}
	}
	return consumed, nil
}

func (d *Demuxer) resetAudio() {
	d.state = stateAudio
	d.remaining = d.interval
}

func (d *Demuxer) emit() {
	block, err := ParseBlock(d.meta)
	switch {
	case errors.Is(err, ErrEmptyBlock):
		return
	case err != nil:
		d.stats.Dropped++
		log.Debug().Err(err).Int("size", len(d.meta)).Msg("Dropping malformed metadata block")
		return
	}
	d.stats.Blocks++
	if d.onBlock != nil {
		d.onBlock(block)
	}
}
