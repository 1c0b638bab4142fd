package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/rivo/tview"
)

// StatusRenderer turns a player snapshot into the one-line status shown in
// the footer. It holds only presentation state: animation frame, mute flag
// and the last sampled buffer health.
type StatusRenderer struct {
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	bufferHealth int

	primaryColor string
	errorColor   string
	pausedColor  string
	loadingColor string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		maxAnimFrame:  4,
		ticksPerFrame: 8, // 8 spinner ticks per status frame
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

// SetStateColors sets the tag colors used for the failed, paused and
// buffering states. Empty values leave the text uncolored.
func (s *StatusRenderer) SetStateColors(errorColor, pausedColor, loadingColor string) {
	s.errorColor = errorColor
	s.pausedColor = pausedColor
	s.loadingColor = loadingColor
}

func (s *StatusRenderer) SetBufferHealth(percent int) {
	s.bufferHealth = percent
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render(snap player.Snapshot) string {
	switch snap.State {
	case player.StateBuffering:
		return s.renderBuffering(snap)
	case player.StatePlaying:
		return s.renderPlaying(snap)
	case player.StatePaused:
		return s.renderPaused(snap)
	case player.StateReconnecting:
		return s.renderReconnecting(snap)
	case player.StateFailed:
		return s.renderFailed(snap)
	default:
		return s.renderStopped()
	}
}

func (s *StatusRenderer) renderStopped() string {
	if s.isMuted {
		return "○ STOPPED │ [red]MUTED[-] │ Select a station"
	}
	return "○ STOPPED │ Select a station"
}

func (s *StatusRenderer) renderBuffering(snap player.Snapshot) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	parts := []string{colorize(s.loadingColor, circles[s.animFrame]+" BUFFERING")}
	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if snap.Stream.Name != "" {
		parts = append(parts, tview.Escape(snap.Stream.Name))
	}
	return joinParts(parts)
}

func (s *StatusRenderer) renderPlaying(snap player.Snapshot) string {
	dots := []string{"●", "◉", "○", "◉"}
	parts := []string{colorize(s.primaryColor, dots[s.animFrame]) + " LIVE"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if info := streamInfo(snap); info != "" {
		parts = append(parts, info)
	}
	if d := snap.SessionDuration(); d > 0 {
		parts = append(parts, formatDuration(d))
	}
	parts = append(parts, s.formatBufferHealth(s.bufferHealth))

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused(snap player.Snapshot) string {
	parts := []string{colorize(s.pausedColor, PauseIcon+" PAUSED")}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if info := streamInfo(snap); info != "" {
		parts = append(parts, info)
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderReconnecting(snap player.Snapshot) string {
	text := fmt.Sprintf("↻ RETRY %d/%d", snap.Attempt, snap.MaxAttempts)
	if wait := time.Until(snap.RetryAt); wait > 0 {
		text += fmt.Sprintf(" in %ds", int(math.Ceil(wait.Seconds())))
	}
	return colorize(s.loadingColor, text)
}

func (s *StatusRenderer) renderFailed(snap player.Snapshot) string {
	reason := "FAILED"
	if snap.Err != nil {
		reason, _, _ = strings.Cut(friendlyErrorMessage(snap.Err), "\n")
	}
	return colorize(s.errorColor, "✗ "+tview.Escape(reason))
}

func (s *StatusRenderer) formatBufferHealth(percent int) string {
	signalBars := []string{"▁", "▂", "▃", "▅", "▇"}
	const numBars = 5

	filled := (percent * numBars) / 100
	if filled > numBars {
		filled = numBars
	}

	var bar strings.Builder
	for i := 0; i < numBars; i++ {
		if i < filled {
			bar.WriteString(signalBars[i])
		} else {
			bar.WriteString("▁")
		}
	}

	return bar.String()
}

// streamInfo renders the codec and bitrate, e.g. "MP3 128k".
func streamInfo(snap player.Snapshot) string {
	var parts []string
	if snap.Format != "" {
		parts = append(parts, snap.Format)
	}
	if snap.Stream.Bitrate > 0 {
		parts = append(parts, fmt.Sprintf("%dk", snap.Stream.Bitrate))
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

func colorize(color, text string) string {
	if color == "" {
		return text
	}
	return fmt.Sprintf("[%s]%s[-]", color, text)
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

// footerHints lists the keys shown in the footer for the given state.
func footerHints(state player.State, muted bool) []shortcut {
	var hints []shortcut
	switch state {
	case player.StatePaused:
		hints = []shortcut{{"Enter", "play"}, {"Space", "resume"}, {"s", "stop"}}
	case player.StatePlaying, player.StateBuffering, player.StateReconnecting:
		hints = []shortcut{{"Enter", "play"}, {"Space", "pause"}, {"s", "stop"}}
	default:
		hints = []shortcut{{"Space", "play"}}
	}

	mute := "mute"
	if muted {
		mute = "unmute"
	}
	return append(hints,
		shortcut{"+/-", "vol"},
		shortcut{"m", mute},
		shortcut{"?", "help"},
		shortcut{"a", "about"},
		shortcut{"q", "quit"},
	)
}

func formatHints(hints []shortcut, keyColor string) string {
	parts := make([]string, len(hints))
	for i, h := range hints {
		parts[i] = fmt.Sprintf("[%s]%s[-] %s", keyColor, h.keys, h.action)
	}
	return " " + strings.Join(parts, "  ") + " "
}

func (ui *UI) getHelpText() string {
	return formatHints(footerHints(ui.snap.State, ui.isMuted), ui.colors.helpHotkey.String())
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillRect(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fillRect(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillRect(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fillRect(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillRect(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render(ui.snap) + " "

		if width >= FooterBreakpoint {
			ui.drawWideFooter(screen, x, y, width, min(height, FooterHeightWide), helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
