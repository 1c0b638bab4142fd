// Package fault classifies playback failures so the player can decide
// between reconnecting and giving up.
package fault

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the failure category of an Error.
type Kind int

const (
	// Protocol covers malformed ICY metadata. It is recovered locally by the
	// demuxer and never stops playback.
	Protocol Kind = iota
	// Network covers dial failures, resets, read timeouts, 5xx and an
	// unexpected end of the stream. Recoverable by reconnecting.
	Network
	// Format is an unsupported or undecodable audio stream.
	Format
	// Device is an audio output that cannot be opened.
	Device
	// Fatal covers responses a retry will not fix, such as 404.
	Fatal
	// Config is an invalid setting.
	Config
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case Network:
		return "network"
	case Format:
		return "format"
	case Device:
		return "device"
	case Fatal:
		return "fatal"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Recoverable reports whether errors of this kind warrant a reconnect.
func (k Kind) Recoverable() bool {
	return k == Network || k == Protocol
}

// Error is a classified failure. ChannelID and Attempt are filled in by the
// player when the error leaves a session.
type Error struct {
	Kind      Kind
	ChannelID string
	Attempt   int
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.ChannelID != "" {
		fmt.Fprintf(&b, " on %s", e.ChannelID)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " (attempt %d)", e.Attempt)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: Fatal}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ChannelID == "" || t.ChannelID == e.ChannelID)
}

// New returns an Error of kind k wrapping err.
func New(k Kind, err error) *Error {
	return &Error{Kind: k, Err: err}
}

// Newf returns an Error of kind k with a formatted cause.
func Newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with msg and classifies it. A nil err yields nil.
func Wrap(k Kind, err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Err: pkgerrors.WithMessage(err, msg)}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Fatal for unclassified errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return Fatal
}

// Recoverable reports whether err should trigger a reconnect.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Recoverable()
}

// Cause returns the innermost error behind err.
func Cause(err error) error {
	for {
		fe, ok := err.(*Error)
		if !ok || fe.Err == nil {
			break
		}
		err = fe.Err
	}
	return pkgerrors.Cause(err)
}

// WithContext returns a copy of err stamped with the channel and attempt. Errors
// that are not classified become Fatal.
func WithContext(err error, channelID string, attempt int) *Error {
	if err == nil {
		return nil
	}
	fe, ok := As(err)
	if !ok {
		fe = New(Fatal, err)
	}
	cp := *fe
	cp.ChannelID = channelID
	cp.Attempt = attempt
	return &cp
}
