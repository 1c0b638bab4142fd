package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebovdev/somafm-player/internal/audio/audiotest"
	"github.com/glebovdev/somafm-player/internal/fault"
)

func newTestSink(t *testing.T, queue, volume int) (*Sink, *audiotest.Device) {
	t.Helper()
	dev := &audiotest.Device{}
	s, err := NewSink(dev, SinkOptions{QueueFrames: queue, Volume: volume})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s, dev
}

func TestSinkVolumeRoundTrip(t *testing.T) {
	s, _ := newTestSink(t, 4, 100)

	for v := 0; v <= 100; v++ {
		s.SetVolume(v)
		if got := s.Gain(); !near(got, float64(v)/100) {
			t.Fatalf("SetVolume(%d): Gain() = %v, want %v", v, got, float64(v)/100)
		}
	}

	s.SetVolume(250)
	if got := s.Gain(); !near(got, 1) {
		t.Errorf("SetVolume(250): Gain() = %v, want 1", got)
	}
	s.SetVolume(-5)
	if got := s.Gain(); !near(got, 0) {
		t.Errorf("SetVolume(-5): Gain() = %v, want 0", got)
	}
}

func TestSinkAppliesGainOnNextPull(t *testing.T) {
	s, dev := newTestSink(t, 4, 50)
	ctx := context.Background()

	if err := s.Offer(ctx, audiotest.Frame(8, 0.8, -0.8)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	if err := s.Offer(ctx, audiotest.Frame(8, 0.8, -0.8)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	out := dev.Pull(8)
	if !near(out[0][0], 0.4) || !near(out[0][1], -0.4) {
		t.Errorf("at volume 50 sample = %v, want [0.4 -0.4]", out[0])
	}

	s.SetVolume(25)
	out = dev.Pull(8)
	if !near(out[0][0], 0.2) {
		t.Errorf("at volume 25 sample = %v, want 0.2", out[0])
	}
}

func TestSinkUnderrunPlaysSilence(t *testing.T) {
	s, dev := newTestSink(t, 4, 100)

	if err := s.Offer(context.Background(), audiotest.Frame(4, 0.5, 0.5)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	out := dev.Pull(8)
	for i := 0; i < 4; i++ {
		if !near(out[i][0], 0.5) {
			t.Errorf("sample %d = %v, want 0.5", i, out[i])
		}
	}
	for i := 4; i < 8; i++ {
		if out[i] != [2]float64{} {
			t.Errorf("sample %d = %v, want silence", i, out[i])
		}
	}
	if s.Underruns() != 1 {
		t.Errorf("Underruns() = %d, want 1", s.Underruns())
	}
}

func TestSinkOfferBlocksWhenFull(t *testing.T) {
	s, dev := newTestSink(t, 2, 100)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Offer(ctx, audiotest.Frame(4, 0.1, 0.1)); err != nil {
			t.Fatalf("Offer() error = %v", err)
		}
	}
	if s.Fill() != 100 {
		t.Errorf("Fill() = %d, want 100", s.Fill())
	}

	done := make(chan error, 1)
	go func() { done <- s.Offer(ctx, audiotest.Frame(4, 0.1, 0.1)) }()

	select {
	case err := <-done:
		t.Fatalf("Offer() returned %v while queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	dev.Pull(4)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Offer() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Offer() still blocked after the device pulled a frame")
	}
}

func TestSinkOfferHonorsContext(t *testing.T) {
	s, _ := newTestSink(t, 1, 100)
	if err := s.Offer(context.Background(), audiotest.Frame(4, 0.1, 0.1)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Offer(ctx, audiotest.Frame(4, 0.1, 0.1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Offer() = %v, want context.DeadlineExceeded", err)
	}
}

func TestSinkPauseHaltsConsumption(t *testing.T) {
	s, dev := newTestSink(t, 4, 100)
	if err := s.Offer(context.Background(), audiotest.Frame(4, 0.5, 0.5)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	s.SetPaused(true)
	out := dev.Pull(4)
	if out[0] != [2]float64{} {
		t.Errorf("paused sample = %v, want silence", out[0])
	}
	if s.Fill() != 25 {
		t.Errorf("Fill() while paused = %d, want 25", s.Fill())
	}

	s.SetPaused(false)
	out = dev.Pull(4)
	if !near(out[0][0], 0.5) {
		t.Errorf("resumed sample = %v, want 0.5", out[0])
	}
}

func TestSinkCloseDetaches(t *testing.T) {
	s, dev := newTestSink(t, 4, 100)
	ctx := context.Background()
	if err := s.Offer(ctx, audiotest.Frame(4, 0.9, 0.9)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	s.Close()
	s.Close()

	out := dev.Pull(4)
	if out[0] != [2]float64{} {
		t.Errorf("sample after Close = %v, want silence", out[0])
	}
	if dev.Streamers() != 0 {
		t.Errorf("device still has %d streamers after Close", dev.Streamers())
	}
	if err := s.Offer(ctx, audiotest.Frame(4, 0.9, 0.9)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Offer() after Close = %v, want ErrSinkClosed", err)
	}
}

func TestSinkCloseUnblocksOffer(t *testing.T) {
	s, _ := newTestSink(t, 1, 100)
	ctx := context.Background()
	if err := s.Offer(ctx, audiotest.Frame(4, 0.1, 0.1)); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Offer(ctx, audiotest.Frame(4, 0.1, 0.1)) }()
	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSinkClosed) {
			t.Errorf("Offer() = %v, want ErrSinkClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Offer")
	}
}

func TestNewSinkDeviceError(t *testing.T) {
	dev := &audiotest.Device{InitErr: fault.Newf(fault.Device, "no output device")}
	_, err := NewSink(dev, SinkOptions{})
	if fault.KindOf(err) != fault.Device {
		t.Errorf("NewSink() error = %v, want device error", err)
	}
}
