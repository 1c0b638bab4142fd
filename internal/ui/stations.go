package ui

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxNameWidth = 35

func (ui *UI) createStationListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(fmt.Sprintf("Stations (%d)", ui.directory.Count())).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		text      string
		maxWidth  int
		expansion int
		align     int
	}{
		{" ", 2, 0, tview.AlignLeft},
		{" ", 2, 0, tview.AlignLeft},
		{"Name", 0, 1, tview.AlignLeft},
		{"Genre", 0, 1, tview.AlignLeft},
		{"Listeners", 0, 0, tview.AlignRight},
	}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h.text).
			SetTextColor(ui.colors.listHeaderForeground).
			SetBackgroundColor(ui.colors.listHeaderBackground).
			SetMaxWidth(h.maxWidth).
			SetExpansion(h.expansion).
			SetAlign(h.align).
			SetSelectable(false))
	}

	for i := 0; i < ui.directory.Count(); i++ {
		ui.setStationRow(table, i+1, i)
	}

	// Keep the selection on the same channel when the list is re-sorted.
	table.SetSelectionChangedFunc(func(row, column int) {
		if c := ui.directory.Channel(row - 1); c != nil {
			ui.selectedChannelID = c.ID
		}
	})

	return table
}

// playIcon is the marker shown next to the channel the player is on.
func playIcon(state player.State) string {
	switch state {
	case player.StatePaused:
		return PauseIcon
	case player.StateFailed:
		return "✗"
	case player.StateStopped:
		return " "
	default:
		return "➤"
	}
}

func (ui *UI) setStationRow(table *tview.Table, row int, index int) {
	c := ui.directory.Channel(index)
	if c == nil {
		return
	}

	favIcon := " "
	if ui.store.IsFavorite(c.ID) {
		favIcon = "★"
	}
	table.SetCell(row, 0, tview.NewTableCell(favIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	icon := " "
	if c.ID == ui.snap.ChannelID {
		icon = playIcon(ui.snap.State)
	}
	table.SetCell(row, 1, tview.NewTableCell(icon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	table.SetCell(row, 2, tview.NewTableCell(c.Title).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxNameWidth).
		SetExpansion(2))

	table.SetCell(row, 3, tview.NewTableCell(strings.Join(c.Genres(), ", ")).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(27).
		SetExpansion(1))

	table.SetCell(row, 4, tview.NewTableCell(c.Listeners).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

func (ui *UI) selectedIndex() int {
	row, _ := ui.stationList.GetSelection()
	return row - 1
}

func (ui *UI) nextStation() {
	count := ui.directory.Count()
	if count == 0 {
		return
	}

	next := (ui.selectedIndex() + 1) % count
	ui.stationList.Select(next+1, 0)
	ui.onStationSelected(next)
}

func (ui *UI) prevStation() {
	count := ui.directory.Count()
	if count == 0 {
		return
	}

	prev := ui.selectedIndex() - 1
	if prev < 0 {
		prev = count - 1
	}
	ui.stationList.Select(prev+1, 0)
	ui.onStationSelected(prev)
}

func (ui *UI) randomStation() {
	count := ui.directory.Count()
	if count == 0 {
		return
	}

	index := rand.Intn(count)
	ui.stationList.Select(index+1, 0)
	ui.onStationSelected(index)
}

func (ui *UI) selectAndShowStation(index int) {
	c := ui.directory.Channel(index)
	if c == nil {
		return
	}

	ui.currentChannel = c
	ui.stationList.Select(index+1, 0)
	ui.showContentPanel()

	log.Debug().Msgf("Showing station info (without playing): %s", c.Title)
}

func (ui *UI) toggleFavorite() {
	index := ui.selectedIndex()
	c := ui.directory.Channel(index)
	if c == nil {
		return
	}

	favorite, err := ui.store.ToggleFavorite(c.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}

	if favCell := ui.stationList.GetCell(index+1, 0); favCell != nil {
		if favorite {
			favCell.SetText("★")
		} else {
			favCell.SetText(" ")
		}
	}

	log.Debug().Bool("favorite", favorite).Msgf("Toggled favorite for station: %s", c.Title)
}

func (ui *UI) refreshStationTable() {
	count := ui.directory.Count()

	for i := 0; i < count; i++ {
		ui.setStationRow(ui.stationList, i+1, i)
	}

	if ui.selectedChannelID != "" {
		if index := ui.directory.FindIndexByID(ui.selectedChannelID); index >= 0 {
			ui.stationList.Select(index+1, 0)
		}
	}

	ui.stationList.SetTitle(fmt.Sprintf("Stations (%d)", count))

	log.Debug().Int("count", count).Msg("Station table refreshed")
}

// updateStationListPlayingIndicator redraws the marker and spinner of the
// playing row and clears the row that was playing before.
func (ui *UI) updateStationListPlayingIndicator() {
	if ui.stationList == nil {
		return
	}

	index := ui.directory.FindIndexByID(ui.snap.ChannelID)
	if ui.indicatorIndex >= 0 && ui.indicatorIndex != index {
		ui.setStationRow(ui.stationList, ui.indicatorIndex+1, ui.indicatorIndex)
	}
	ui.indicatorIndex = index
	if index < 0 {
		return
	}

	row := index + 1
	c := ui.directory.Channel(index)
	if c == nil {
		return
	}

	if playCell := ui.stationList.GetCell(row, 1); playCell != nil {
		playCell.SetText(playIcon(ui.snap.State))
	}

	nameCell := ui.stationList.GetCell(row, 2)
	if nameCell == nil {
		return
	}

	if ui.snap.State != player.StatePlaying && ui.snap.State != player.StateBuffering {
		nameCell.SetText(c.Title)
		return
	}
	nameCell.SetText(spinnerName(c.Title, ui.getPlayingIndicator()))
}

// spinnerName appends the spinner to a channel name, truncating the name so
// the result fits the name column.
func spinnerName(name, indicator string) string {
	maxLen := maxNameWidth - len([]rune(indicator)) - 1
	if r := []rune(name); len(r) > maxLen {
		name = string(r[:maxLen-3]) + "..."
	}
	return name + " " + indicator
}
