package ui

import (
	"fmt"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

// VolumeStore is the player's volume persistence with mute awareness: while
// muted, settled volume changes are not written, so the config keeps the
// level to restore on the next start.
type VolumeStore struct {
	store *config.Store
	muted atomic.Bool
}

func NewVolumeStore(store *config.Store) *VolumeStore {
	return &VolumeStore{store: store}
}

func (v *VolumeStore) SaveVolume(level int) error {
	if v.muted.Load() {
		return nil
	}
	return v.store.SaveVolume(level)
}

func (v *VolumeStore) SetMuted(muted bool) {
	v.muted.Store(muted)
}

const volumeBarHeight = 10

// volumeLevels returns how many of the bar's cells are lit for level.
func volumeLevels(level, height int) (filled, empty int) {
	filled = config.ClampVolume(level) * height / 100
	return filled, height - filled
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	ui.mu.Lock()
	level, muted := ui.currentVolume, ui.isMuted
	if muted {
		level = ui.savedVolume
	}
	ui.mu.Unlock()

	accent := ui.colors.highlight
	if muted {
		accent = config.GetColor(ui.theme.MutedVolume)
	}

	cell := func(text string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView().SetText(text).SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}
	row := func(label *tview.TextView, bar string, color tcell.Color) {
		line := tview.NewFlex().
			AddItem(label, 4, 0, false).
			AddItem(cell(bar, color), 0, 1, false)
		line.SetBackgroundColor(ui.colors.background)
		container.AddItem(line, 1, 0, false)
	}

	filled, empty := volumeLevels(level, volumeBarHeight)

	container.AddItem(cell("   max", ui.colors.foreground), 1, 0, false)
	for i := 0; i < empty; i++ {
		row(cell("", ui.colors.foreground), " ░░", ui.colors.foreground)
	}
	for i := 0; i < filled; i++ {
		label := cell("", accent)
		if i == 0 {
			label.SetText(fmt.Sprintf("%d%%", level))
			if muted {
				label.SetTextStyle(tcell.StyleDefault.
					Foreground(accent).
					Background(ui.colors.background).
					Attributes(tcell.AttrStrikeThrough))
			}
		}
		row(label, " ██", accent)
	}
	container.AddItem(cell("   min", ui.colors.foreground), 1, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) sendVolume(level int) {
	if err := ui.player.Send(player.SetVolume{Level: level}); err != nil {
		log.Debug().Err(err).Msg("Volume change not sent")
	}
}

func (ui *UI) setMuted(muted bool) {
	ui.isMuted = muted
	ui.volumeStore.SetMuted(muted)
	ui.statusRenderer.SetMuted(muted)
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()

	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.setMuted(false)
		level := ui.currentVolume
		ui.mu.Unlock()

		ui.sendVolume(level)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", level)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	level := ui.currentVolume
	ui.mu.Unlock()

	ui.sendVolume(level)
	ui.updateVolumeDisplay()
	log.Debug().Msgf("Volume adjusted to %d%%", level)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.savedVolume
		ui.setMuted(false)
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		ui.savedVolume = ui.currentVolume
		if ui.savedVolume == 0 {
			ui.savedVolume = config.DefaultVolume
		}
		ui.currentVolume = 0
		ui.setMuted(true)
		log.Debug().Msgf("Muted, saved volume %d%%", ui.savedVolume)
	}
	level := ui.currentVolume
	ui.mu.Unlock()

	ui.sendVolume(level)
	ui.updateVolumeDisplay()
}
