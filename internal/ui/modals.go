package ui

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/rivo/tview"
)

func friendlyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") {
		return "Network is unreachable.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "status 401") {
		return "Stream access denied (401)."
	}
	if strings.Contains(errStr, "status 403") {
		return "Stream access forbidden (403)."
	}
	if strings.Contains(errStr, "status 404") || strings.Contains(errStr, "status 410") {
		return "Stream not found (404)."
	}

	switch fault.KindOf(err) {
	case fault.Format:
		return "Unsupported stream format.\nTry another station."
	case fault.Device:
		return "Audio output unavailable.\nPlease check your sound device."
	case fault.Network:
		if fe, ok := fault.As(err); ok && fe.Attempt > 0 {
			return fmt.Sprintf("Stream lost after %d attempts.", fe.Attempt)
		}
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) showError(err error) {
	ui.showPlaybackErrorModal(friendlyErrorMessage(err))
}

const (
	errorPage = "error-modal"
	modalPage = "modal"
)

// dialog describes a framed box with a message and a one-line key hint under
// it. Keys maps lowercase runes to actions, onEsc also serves Enter, and
// onOther takes every remaining key when set.
type dialog struct {
	title   string
	message string
	hint    string
	align   int
	accent  tcell.Color
	keys    map[rune]func()
	onEsc   func()
	onOther func()
}

func (ui *UI) dialogBox(d dialog) *tview.Frame {
	body := tview.NewTextView().
		SetTextAlign(d.align).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + d.message)
	body.SetTextColor(ui.colors.foreground)
	body.SetBackgroundColor(ui.colors.modalBackground)

	hint := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]" + d.hint + "[::-]")
	hint.SetTextColor(tcell.ColorDarkGray)
	hint.SetBackgroundColor(ui.colors.modalBackground)

	inner := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(hint, 1, 0, false).
		AddItem(nil, 1, 0, false)
	inner.SetBackgroundColor(ui.colors.modalBackground)

	box := tview.NewFrame(inner).SetBorders(1, 0, 1, 1, 2, 2)
	box.SetBorder(true).
		SetBorderColor(d.accent).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + d.title + " ").
		SetTitleColor(d.accent).
		SetTitleAlign(tview.AlignCenter)
	return box
}

func (d dialog) capture(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyEnter:
		if d.onEsc != nil {
			d.onEsc()
			return nil
		}
	case tcell.KeyRune:
		if fn, ok := d.keys[unicode.ToLower(event.Rune())]; ok {
			fn()
			return nil
		}
	}
	if d.onOther != nil {
		d.onOther()
		return nil
	}
	return event
}

// openDialog shows d centered above the current page under the given name.
func (ui *UI) openDialog(page string, d dialog, width, height int) {
	ui.pages.RemovePage(page)
	overlay := ui.centered(ui.dialogBox(d), width, height)
	overlay.SetInputCapture(d.capture)
	ui.pages.AddPage(page, overlay, true, true)
	ui.app.SetFocus(overlay)
}

func (ui *UI) closeDialog(page string) {
	ui.pages.RemovePage(page)
	ui.app.SetFocus(ui.stationList)
}

func (ui *UI) showPlaybackErrorModal(message string) {
	dismiss := func() { ui.closeDialog(errorPage) }

	height := 9 + strings.Count(message, "\n")
	ui.openDialog(errorPage, dialog{
		title:   "Error",
		message: "[::b]Playback Error[::-]\n\n" + tview.Escape(message),
		hint:    "Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss",
		align:   tview.AlignCenter,
		accent:  ui.colors.errorForeground,
		keys: map[rune]func(){
			'r': func() {
				dismiss()
				ui.replay()
			},
		},
		onEsc: dismiss,
	}, 50, min(height, 15))
}

// centered places p in the middle of the screen at a fixed size.
func (ui *UI) centered(p tview.Primitive, width, height int) *tview.Flex {
	column := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(p, height, 0, true).
		AddItem(nil, 0, 1, false)
	row := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(column, width, 0, true).
		AddItem(nil, 0, 1, false)
	row.SetBackgroundColor(ui.colors.background)
	return row
}

type shortcut struct{ keys, action string }

func helpShortcuts() []shortcut {
	return []shortcut{
		{"", "PLAYBACK"},
		{"Enter", "Play selected station"},
		{"Space", "Pause / Resume"},
		{"s", "Stop"},
		{"<", "Previous station"},
		{">", "Next station"},
		{"r", "Random station"},
		{"", "VOLUME"},
		{"+ -", "Volume up / down"},
		{"→ ←", "Volume up / down"},
		{"m", "Mute / Unmute"},
		{"", "STATIONS"},
		{"↑ ↓", "Navigate list"},
		{"f", "Toggle favorite"},
		{"", "APPLICATION"},
		{"?", "Show this help"},
		{"a", "About " + config.AppName},
		{"q Esc", "Quit"},
	}
}

// shortcutsText lays the shortcuts out in two columns, key names in color.
func shortcutsText(keyColor, configPath string) string {
	const keyColumn = 12

	var b strings.Builder
	b.WriteString("[::b]KEYBOARD SHORTCUTS[::-]\n")
	for _, sc := range helpShortcuts() {
		if sc.keys == "" {
			fmt.Fprintf(&b, "\n[%s]%s[-]\n", keyColor, sc.action)
			continue
		}
		keys := strings.Fields(sc.keys)
		width := len(keys) - 1
		for i, k := range keys {
			keys[i] = "[" + keyColor + "]" + tview.Escape(k) + "[-]"
			width += len([]rune(k))
		}
		pad := strings.Repeat(" ", max(keyColumn-width, 1))
		fmt.Fprintf(&b, "  %s%s%s\n", strings.Join(keys, "/"), pad, sc.action)
	}
	if configPath != "" {
		fmt.Fprintf(&b, "\n[%s]CONFIG[-]: %s", keyColor, tview.Escape(configPath))
	}
	return b.String()
}

func (ui *UI) showHelpModal() {
	configPath, _ := config.GetConfigPath()
	text := shortcutsText(ui.colors.helpHotkey.String(), configPath)
	ui.showInfoModal("Help", text)
}

func (ui *UI) showAboutModal() {
	link := func(url, label string) string {
		return fmt.Sprintf("[skyblue:::%s]%s[-:::-]", url, label)
	}

	lines := []string{
		"[::b]" + config.AppName + "[::-]",
		"[gray]" + config.AppTagline + "[-]",
		"",
		"Version: " + config.AppVersion,
		"Project: " + link(config.AppProjectURL, config.AppProjectShort),
		"License: MIT",
		"",
		strings.Repeat("─", 43),
		"",
		"[gray]Radio content from[-] [::b]SomaFM[::-]",
		"Listener-supported • " + link(config.AppDonateURL, config.AppDonateShort),
	}
	ui.showTextModal("About", strings.Join(lines, "\n"), 50, 18)
}

func (ui *UI) showInfoModal(title, message string) {
	lines := strings.Count(message, "\n") + 1
	ui.showTextModal(title, message, 45, min(lines+10, 38))
}

func (ui *UI) showTextModal(title, message string, width, height int) {
	ui.openDialog(modalPage, dialog{
		title:   title,
		message: message,
		hint:    "Press any key to close",
		align:   tview.AlignLeft,
		accent:  ui.colors.highlight,
		onOther: func() { ui.closeDialog(modalPage) },
	}, width, height)
}

// showInitialErrorScreen replaces the whole screen, since there is no
// station list to fall back to.
func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	d := dialog{
		title:   "Connection Error",
		message: "[::b]" + title + "[::-]\n\n" + tview.Escape(message),
		hint:    "Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit",
		align:   tview.AlignCenter,
		accent:  ui.colors.errorForeground,
		keys:    map[rune]func(){'r': onRetry, 'q': onQuit},
		onEsc:   onQuit,
	}

	screen := ui.centered(ui.dialogBox(d), 60, 12)
	screen.SetInputCapture(d.capture)
	ui.app.SetRoot(screen, true)
	ui.app.SetFocus(screen)
}

func (ui *UI) handleInitialError(err error) {
	ui.showInitialErrorScreen(
		"Unable to Load Stations",
		friendlyErrorMessage(err),
		func() {
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		},
		ui.stop,
	)
}
