package ui

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/glebovdev/somafm-player/internal/stream"
)

func TestNewPlayingSpinner(t *testing.T) {
	spinner := NewPlayingSpinner()

	if len(spinner.Frames) < 2 {
		t.Errorf("Expected at least 2 frames, got %d", len(spinner.Frames))
	}
	for i, frame := range spinner.Frames {
		if frame == "" {
			t.Errorf("Frame[%d] is empty", i)
		}
	}
	if spinner.FPS <= 0 {
		t.Error("PlayingSpinner.FPS should be positive")
	}
}

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"nil slice", nil, ""},
		{"single part", []string{"LIVE"}, "LIVE"},
		{"two parts", []string{"LIVE", "MP3"}, "LIVE │ MP3"},
		{"three parts", []string{"● LIVE", "MP3 128k", "01:05"}, "● LIVE │ MP3 128k │ 01:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := joinParts(tt.parts); result != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, result, tt.expected)
			}
		})
	}
}

func TestFriendlyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "no such host",
			err:      fault.New(fault.Network, errors.New("dial tcp: lookup ice1.somafm.com: no such host")),
			contains: "Unable to connect",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:80: connection refused"),
			contains: "Connection refused",
		},
		{
			name:     "timeout",
			err:      fault.New(fault.Network, stream.ErrReadTimeout),
			contains: "timed out",
		},
		{
			name:     "network unreachable",
			err:      errors.New("dial tcp: network is unreachable"),
			contains: "Network is unreachable",
		},
		{
			name:     "403 forbidden",
			err:      stream.ClassifyStatus(403, "403 Forbidden"),
			contains: "403",
		},
		{
			name:     "404 not found",
			err:      stream.ClassifyStatus(404, "404 Not Found"),
			contains: "404",
		},
		{
			name:     "unsupported format",
			err:      fault.Newf(fault.Format, "unsupported content type audio/aac"),
			contains: "Unsupported stream format",
		},
		{
			name:     "audio device",
			err:      fault.Newf(fault.Device, "no output"),
			contains: "sound device",
		},
		{
			name:     "retries exhausted",
			err:      &fault.Error{Kind: fault.Network, ChannelID: "groovesalad", Attempt: 5, Err: errors.New("stream ended")},
			contains: "Stream lost after 5 attempts",
		},
		{
			name:     "generic error (short)",
			err:      errors.New("some error"),
			contains: "some error",
		},
		{
			name:     "dial error truncation",
			err:      errors.New("failed to connect: dial tcp something something"),
			contains: "failed to connect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := friendlyErrorMessage(tt.err)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("friendlyErrorMessage(%v) = %q, expected to contain %q", tt.err, result, tt.contains)
			}
		})
	}
}

func TestFriendlyErrorMessageEdges(t *testing.T) {
	if got := friendlyErrorMessage(nil); got != "" {
		t.Errorf("friendlyErrorMessage(nil) = %q, want empty", got)
	}

	long := errors.New(strings.Repeat("x", 200))
	if got := friendlyErrorMessage(long); len(got) > 110 {
		t.Errorf("Long error not truncated properly, got length %d", len(got))
	}
}

func TestStatusRendererRender(t *testing.T) {
	notFound := fault.WithContext(stream.ClassifyStatus(404, "404 Not Found"), "groovesalad", 1)

	tests := []struct {
		name     string
		muted    bool
		snap     player.Snapshot
		contains []string
		excludes []string
	}{
		{
			name:     "stopped",
			snap:     player.Snapshot{State: player.StateStopped},
			contains: []string{"STOPPED", "Select a station"},
			excludes: []string{"MUTED"},
		},
		{
			name:     "stopped muted",
			muted:    true,
			snap:     player.Snapshot{State: player.StateStopped},
			contains: []string{"STOPPED", "MUTED"},
		},
		{
			name: "buffering with stream name",
			snap: player.Snapshot{
				State:  player.StateBuffering,
				Stream: stream.Info{Name: "Groove Salad"},
			},
			contains: []string{"BUFFERING", "Groove Salad"},
		},
		{
			name: "playing",
			snap: player.Snapshot{
				State:  player.StatePlaying,
				Format: "MP3",
				Stream: stream.Info{Bitrate: 128},
			},
			contains: []string{"LIVE", "MP3 128k"},
			excludes: []string{"MUTED"},
		},
		{
			name:     "playing muted",
			muted:    true,
			snap:     player.Snapshot{State: player.StatePlaying},
			contains: []string{"LIVE", "MUTED"},
		},
		{
			name: "paused",
			snap: player.Snapshot{
				State:  player.StatePaused,
				Format: "WAV",
			},
			contains: []string{"PAUSED", "WAV"},
		},
		{
			name:     "reconnecting",
			snap:     player.Snapshot{State: player.StateReconnecting, Attempt: 2, MaxAttempts: 5},
			contains: []string{"RETRY 2/5"},
			excludes: []string{" in "},
		},
		{
			name:     "failed with error",
			snap:     player.Snapshot{State: player.StateFailed, Err: notFound},
			contains: []string{"✗", "Stream not found (404)."},
		},
		{
			name:     "failed without error",
			snap:     player.Snapshot{State: player.StateFailed},
			contains: []string{"✗ FAILED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := NewStatusRenderer()
			renderer.SetMuted(tt.muted)

			result := renderer.Render(tt.snap)
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("Render() = %q, expected to contain %q", result, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(result, unwanted) {
					t.Errorf("Render() = %q, expected not to contain %q", result, unwanted)
				}
			}
		})
	}
}

func TestStatusRendererRetryCountdown(t *testing.T) {
	renderer := NewStatusRenderer()

	result := renderer.Render(player.Snapshot{
		State:       player.StateReconnecting,
		Attempt:     1,
		MaxAttempts: 3,
		RetryAt:     time.Now().Add(2500 * time.Millisecond),
	})
	if !strings.Contains(result, "RETRY 1/3 in 3s") {
		t.Errorf("Render() = %q, expected countdown 'in 3s'", result)
	}
}

func TestStatusRendererColors(t *testing.T) {
	renderer := NewStatusRenderer()
	renderer.SetStateColors("#ff5555", "#f1fa8c", "#8be9fd")

	failed := renderer.Render(player.Snapshot{State: player.StateFailed})
	if !strings.HasPrefix(failed, "[#ff5555]") {
		t.Errorf("failed status %q should use the error color", failed)
	}

	paused := renderer.Render(player.Snapshot{State: player.StatePaused})
	if !strings.HasPrefix(paused, "[#f1fa8c]") {
		t.Errorf("paused status %q should use the paused color", paused)
	}
}

func TestStatusRendererAdvanceAnimation(t *testing.T) {
	renderer := NewStatusRenderer()

	initialFrame := renderer.animFrame

	for i := 0; i < renderer.ticksPerFrame-1; i++ {
		renderer.AdvanceAnimation()
	}
	if renderer.animFrame != initialFrame {
		t.Error("Animation frame changed before ticksPerFrame ticks")
	}

	renderer.AdvanceAnimation()

	if renderer.animFrame != (initialFrame+1)%renderer.maxAnimFrame {
		t.Errorf("Animation frame = %d, want %d", renderer.animFrame, (initialFrame+1)%renderer.maxAnimFrame)
	}
	if renderer.tickCount != 0 {
		t.Errorf("tickCount = %d, want 0 after frame advance", renderer.tickCount)
	}
}

func TestStatusRendererFormatBufferHealth(t *testing.T) {
	renderer := &StatusRenderer{}

	for _, percent := range []int{0, 50, 100, 120} {
		result := renderer.formatBufferHealth(percent)
		if n := utf8.RuneCountInString(result); n != 5 {
			t.Errorf("formatBufferHealth(%d) returned %d runes, want 5", percent, n)
		}
	}

	if renderer.formatBufferHealth(0) == renderer.formatBufferHealth(100) {
		t.Error("0% and 100% buffer health should look different")
	}
	if got := renderer.formatBufferHealth(100); got != "▁▂▃▅▇" {
		t.Errorf("formatBufferHealth(100) = %q, want full bars", got)
	}
}

func TestBufferHealthShownWhilePlaying(t *testing.T) {
	renderer := NewStatusRenderer()
	renderer.SetBufferHealth(100)

	result := renderer.Render(player.Snapshot{State: player.StatePlaying})
	if !strings.Contains(result, "▁▂▃▅▇") {
		t.Errorf("Render() = %q, expected full buffer bars", result)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{65 * time.Second, "01:05"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour + 2*time.Minute + 5*time.Second, "1:02:05"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestStreamInfo(t *testing.T) {
	tests := []struct {
		name string
		snap player.Snapshot
		want string
	}{
		{"nothing known", player.Snapshot{}, ""},
		{"format only", player.Snapshot{Format: "MP3"}, "MP3"},
		{"bitrate only", player.Snapshot{Stream: stream.Info{Bitrate: 64}}, "64k"},
		{"both", player.Snapshot{Format: "MP3", Stream: stream.Info{Bitrate: 256}}, "MP3 256k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := streamInfo(tt.snap); got != tt.want {
				t.Errorf("streamInfo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrackText(t *testing.T) {
	live := player.Snapshot{
		ChannelID:  "groovesalad",
		NowPlaying: player.NowPlaying{ChannelID: "groovesalad", Title: "Bonobo - Kerala"},
	}

	tests := []struct {
		name        string
		snap        player.Snapshot
		channelID   string
		initial     string
		lastPlaying string
		want        string
	}{
		{"stream title wins", live, "groovesalad", "API Track", "Old Track", "Bonobo - Kerala"},
		{"other channel on screen", live, "dronezone", "API Track", "Old Track", "API Track"},
		{"no metadata yet", player.Snapshot{ChannelID: "groovesalad"}, "groovesalad", "API Track", "Old Track", "API Track"},
		{"fallback to directory", player.Snapshot{}, "groovesalad", "", "Old Track", "Old Track"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trackText(tt.snap, tt.channelID, tt.initial, tt.lastPlaying); got != tt.want {
				t.Errorf("trackText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlayIcon(t *testing.T) {
	tests := []struct {
		state player.State
		want  string
	}{
		{player.StateStopped, " "},
		{player.StateBuffering, "➤"},
		{player.StatePlaying, "➤"},
		{player.StateReconnecting, "➤"},
		{player.StatePaused, PauseIcon},
		{player.StateFailed, "✗"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := playIcon(tt.state); got != tt.want {
				t.Errorf("playIcon(%s) = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestSpinnerName(t *testing.T) {
	indicator := "⣾ "

	short := spinnerName("Groove Salad", indicator)
	if short != "Groove Salad "+indicator {
		t.Errorf("spinnerName() = %q, want name followed by indicator", short)
	}

	long := spinnerName(strings.Repeat("Ü", 60), indicator)
	if n := utf8.RuneCountInString(long); n > maxNameWidth {
		t.Errorf("spinnerName() is %d runes, want at most %d", n, maxNameWidth)
	}
	if !strings.Contains(long, "...") {
		t.Errorf("spinnerName() = %q, expected truncation marker", long)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{-10, 0},
		{0, 0},
		{50, 15},
		{100, 30},
		{150, 30},
	}

	for _, tt := range tests {
		bar := renderProgressBar(tt.percent)
		if n := utf8.RuneCountInString(bar); n != 30 {
			t.Errorf("renderProgressBar(%d) is %d runes, want 30", tt.percent, n)
		}
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderProgressBar(%d) has %d filled cells, want %d", tt.percent, got, tt.filled)
		}
	}
}

func TestVolumeStoreSkipsWhileMuted(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Volume = 70
	store := config.NewStore(cfg)
	volumes := NewVolumeStore(store)

	volumes.SetMuted(true)
	if err := volumes.SaveVolume(0); err != nil {
		t.Fatalf("SaveVolume() while muted error = %v", err)
	}
	if got := store.Snapshot().Volume; got != 70 {
		t.Errorf("volume after muted save = %d, want 70", got)
	}

	volumes.SetMuted(false)
	if err := volumes.SaveVolume(40); err != nil {
		t.Fatalf("SaveVolume() error = %v", err)
	}
	if got := store.Snapshot().Volume; got != 40 {
		t.Errorf("volume after save = %d, want 40", got)
	}

	loaded, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Volume != 40 {
		t.Errorf("persisted volume = %d, want 40", loaded.Volume)
	}
}

func TestShortcutsText(t *testing.T) {
	text := shortcutsText("yellow", "/home/u/.config/somafm/config.yml")

	for _, want := range []string{
		"KEYBOARD SHORTCUTS",
		"[yellow]PLAYBACK[-]",
		"[yellow]s[-]",
		"[yellow]q[-]/[yellow]Esc[-]",
		"Stop",
		"CONFIG[-]: /home/u/.config/somafm/config.yml",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("shortcutsText() missing %q", want)
		}
	}

	if strings.Contains(shortcutsText("yellow", ""), "CONFIG") {
		t.Error("shortcutsText() with no config path should omit the CONFIG line")
	}
}

func TestDialogCapture(t *testing.T) {
	var retried, dismissed, other int
	d := dialog{
		keys:  map[rune]func(){'r': func() { retried++ }},
		onEsc: func() { dismissed++ },
	}

	if got := d.capture(tcell.NewEventKey(tcell.KeyRune, 'R', tcell.ModNone)); got != nil {
		t.Error("R should be consumed")
	}
	d.capture(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone))
	d.capture(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	if got := d.capture(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)); got == nil {
		t.Error("unbound key should pass through without onOther")
	}
	if retried != 1 || dismissed != 2 {
		t.Errorf("retried=%d dismissed=%d, want 1 and 2", retried, dismissed)
	}

	d.onOther = func() { other++ }
	if got := d.capture(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)); got != nil || other != 1 {
		t.Errorf("onOther should consume the key, got event=%v other=%d", got, other)
	}
}

func TestVolumeLevels(t *testing.T) {
	tests := []struct {
		level, filled int
	}{
		{0, 0},
		{9, 0},
		{50, 5},
		{75, 7},
		{100, 10},
		{150, 10},
		{-5, 0},
	}
	for _, tt := range tests {
		filled, empty := volumeLevels(tt.level, 10)
		if filled != tt.filled || filled+empty != 10 {
			t.Errorf("volumeLevels(%d, 10) = %d, %d; want %d filled of 10", tt.level, filled, empty, tt.filled)
		}
	}
}

func TestFooterHints(t *testing.T) {
	tests := []struct {
		name  string
		state player.State
		muted bool
		want  []string
		not   []string
	}{
		{"stopped", player.StateStopped, false, []string{"[k]Space[-] play", "[k]m[-] mute"}, []string{"stop"}},
		{"playing", player.StatePlaying, false, []string{"[k]Space[-] pause", "[k]s[-] stop"}, nil},
		{"paused", player.StatePaused, false, []string{"[k]Space[-] resume"}, nil},
		{"reconnecting", player.StateReconnecting, false, []string{"[k]s[-] stop"}, nil},
		{"muted", player.StatePlaying, true, []string{"[k]m[-] unmute"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatHints(footerHints(tt.state, tt.muted), "k")
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("hints %q missing %q", got, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("hints %q should not contain %q", got, n)
				}
			}
			if !strings.HasSuffix(got, "[k]q[-] quit ") {
				t.Errorf("hints %q should end with quit", got)
			}
		})
	}
}
