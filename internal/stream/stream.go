// Package stream opens ICY-capable HTTP audio streams and classifies their
// failures. It never retries; the player decides what to do with an error.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/rs/zerolog/log"
)

const (
	NetworkReadSize       = 4096
	DefaultReadTimeout    = 5 * time.Second
	DialTimeout           = 10 * time.Second
	ResponseHeaderTimeout = 15 * time.Second
)

// ErrReadTimeout is the cause of a Network error raised when the server stops
// sending data for longer than the read timeout.
var ErrReadTimeout = errors.New("read timeout")

// Info is what the server announced about the stream in its response headers.
type Info struct {
	Name        string
	Genre       string
	Description string
	URL         string
	ContentType string
	Bitrate     int
	MetaInt     int
}

// StatusError is a non-200 response from the stream server.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream returned status %d: %s", e.StatusCode, e.Status)
}

// Connector opens a stream session. Implemented by HTTPConnector; tests swap
// in their own.
type Connector interface {
	Connect(ctx context.Context, streamURL string) (*Session, error)
}

// HTTPConnector connects to streams over HTTP with ICY metadata requested.
type HTTPConnector struct {
	Client      *http.Client
	UserAgent   string
	ReadTimeout time.Duration
}

// NewHTTPClient returns a client tuned for long-lived streams: no overall
// timeout, bounded dial and header waits, no transparent compression.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: DialTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   DialTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		},
	}
}

func NewHTTPConnector(userAgent string, readTimeout time.Duration) *HTTPConnector {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &HTTPConnector{
		Client:      NewHTTPClient(),
		UserAgent:   userAgent,
		ReadTimeout: readTimeout,
	}
}

// Connect issues the GET request and validates the response headers. The
// returned session owns the response body until Close.
func (c *HTTPConnector) Connect(ctx context.Context, streamURL string) (*Session, error) {
	sessCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(sessCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, fault.Wrap(fault.Fatal, err, "invalid stream URL")
	}
	if scheme := req.URL.Scheme; scheme != "http" && scheme != "https" {
		cancel()
		return nil, fault.Newf(fault.Fatal, "unsupported stream URL scheme %q", scheme)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Icy-MetaData", "1")

	log.Debug().Msgf("Connecting to stream: %s", streamURL)

	resp, err := c.Client.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransport(err)
	}

	log.Debug().Msgf("Stream response status: %d, Content-Type: %s", resp.StatusCode, resp.Header.Get("Content-Type"))

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, ClassifyStatus(resp.StatusCode, resp.Status)
	}

	info, err := ParseInfo(resp.Header)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}
	if info.MetaInt > 0 {
		log.Debug().Msgf("ICY metadata interval: %d bytes", info.MetaInt)
	}

	s := &Session{
		URL:    streamURL,
		Info:   info,
		parent: ctx,
		cancel: cancel,
		body:   resp.Body,
	}
	s.idle = newIdleReader(resp.Body, c.ReadTimeout, cancel)
	return s, nil
}

// ParseInfo reads the icy-* headers. A missing icy-metaint means metadata is
// disabled; a present but malformed one is a Fatal error.
func ParseInfo(h http.Header) (Info, error) {
	info := Info{
		Name:        strings.TrimSpace(h.Get("icy-name")),
		Genre:       strings.TrimSpace(h.Get("icy-genre")),
		Description: strings.TrimSpace(h.Get("icy-description")),
		URL:         strings.TrimSpace(h.Get("icy-url")),
		ContentType: strings.TrimSpace(h.Get("Content-Type")),
	}

	if br := h.Get("icy-br"); br != "" {
		// Some servers send "128,128".
		first, _, _ := strings.Cut(br, ",")
		if n, err := strconv.Atoi(strings.TrimSpace(first)); err == nil {
			info.Bitrate = n
		}
	}

	if val := h.Get("icy-metaint"); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return Info{}, fault.Newf(fault.Fatal, "malformed icy-metaint header %q", val)
		}
		info.MetaInt = n
	}
	return info, nil
}

// ClassifyStatus maps a non-200 status to a Fatal or Network error.
func ClassifyStatus(code int, status string) error {
	statusErr := &StatusError{StatusCode: code, Status: status}
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return fault.Wrap(fault.Fatal, statusErr, "channel not found")
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fault.New(fault.Fatal, statusErr)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return fault.New(fault.Network, statusErr)
	default:
		return fault.New(fault.Fatal, statusErr)
	}
}

// malformedReply matches the net/http errors for replies that are not
// HTTP/1.x, such as a Shoutcast v1 "ICY 200 OK". net/http has no exported
// type for them.
var malformedReply = []string{"malformed HTTP", "malformed MIME header"}

// classifyTransport sorts a client error: a reply that cannot be parsed is
// Fatal, everything else (dial failures, resets, timeouts, EOF) is Network.
func classifyTransport(err error) error {
	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		cause = urlErr.Err
	}

	var protoErr textproto.ProtocolError
	if errors.As(cause, &protoErr) {
		return fault.Wrap(fault.Fatal, err, "malformed response")
	}
	msg := cause.Error()
	for _, marker := range malformedReply {
		if strings.Contains(msg, marker) {
			return fault.Wrap(fault.Fatal, err, "malformed response")
		}
	}
	return fault.New(fault.Network, err)
}

// Session is one open stream. Read and Pump are for a single goroutine;
// Close may be called from any goroutine, any number of times.
type Session struct {
	URL  string
	Info Info

	parent context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	idle   *idleReader

	bytesRead atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool
}

// BytesRead returns the number of body bytes received so far.
func (s *Session) BytesRead() int64 {
	return s.bytesRead.Load()
}

// Read reads from the body and classifies any failure. Cancellation of the
// parent context or Close yields context.Canceled.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.idle.Read(p)
	s.bytesRead.Add(int64(n))
	if err == nil {
		return n, nil
	}
	return n, s.classifyRead(err)
}

func (s *Session) classifyRead(err error) error {
	switch {
	case s.idle.expired.Load():
		return fault.New(fault.Network, fmt.Errorf("%w: no data received for %v", ErrReadTimeout, s.idle.timeout))
	case s.parent.Err() != nil:
		return s.parent.Err()
	case s.closed.Load():
		return context.Canceled
	case errors.Is(err, io.EOF):
		return fault.Newf(fault.Network, "stream ended after %d bytes", s.BytesRead())
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fault.New(fault.Network, err)
	default:
		return classifyTransport(err)
	}
}

// Pump copies the body into w in NetworkReadSize chunks until the stream
// fails, w fails, or the session is closed. It always returns a non-nil error.
func (s *Session) Pump(w io.Writer) error {
	buf := make([]byte, NetworkReadSize)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// Close aborts any in-flight read and releases the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.idle.stop()
		s.cancel()
		err = s.body.Close()
		log.Debug().Int64("bytes", s.BytesRead()).Msgf("Closed stream: %s", s.URL)
	})
	return err
}

// idleReader fires onExpire when a single Read waits longer than timeout.
// Time spent between reads, such as while the consumer applies backpressure,
// does not count. Expiry cancels the request context, which unblocks the
// pending body read.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, onExpire func()) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.expired.Store(true)
		onExpire()
	})
	ir.timer.Stop()
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	if ir.expired.Load() {
		return 0, ErrReadTimeout
	}
	ir.timer.Reset(ir.timeout)
	n, err := ir.r.Read(p)
	ir.timer.Stop()
	if ir.expired.Load() {
		return n, ErrReadTimeout
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
