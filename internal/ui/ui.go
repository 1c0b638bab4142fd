package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/channel"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/directory"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep             = 5
	HeaderHeight           = 3
	FooterHeightWide       = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow     = 6 // Narrow: 2 rows × 3 lines each
	CoverWidth             = 26
	CoverHeight            = 12
	PlayerPanelHeight      = 12
	FooterBreakpoint       = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime  = 1200 * time.Millisecond
	MinStatusDisplayTime   = 300 * time.Millisecond
	StationRefreshInterval = 30 * time.Second
	loadTimeout            = 20 * time.Second
	trackTimeout           = 10 * time.Second
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Options select what plays first.
type Options struct {
	StartRandom bool
	// StreamURL plays a raw stream instead of a SomaFM channel.
	StreamURL string
}

// UI is the terminal front end. It sends commands to the player and renders
// the snapshots the player publishes; all widget state is touched only on
// the tview event goroutine.
type UI struct {
	app         *tview.Application
	directory   *directory.Service
	player      *player.Controller
	store       *config.Store
	volumeStore *VolumeStore
	theme       config.Theme
	opts        Options

	stationList      *tview.Table
	helpPanel        *tview.Box
	contentLayout    *tview.Flex
	playerPanel      *tview.Flex
	stationNameView  *tview.TextView
	currentTrackView *tview.TextView
	logoPanel        *tview.Image
	volumeView       *tview.Flex
	mainLayout       *tview.Flex
	loadingScreen    *tview.Flex
	loadingText      *tview.TextView
	progressBar      *tview.TextView
	pages            *tview.Pages

	currentChannel    *channel.Channel
	selectedChannelID string
	customURL         string
	indicatorIndex    int

	snap           player.Snapshot
	shownErr       *fault.Error
	initialTrack   string
	trackChannelID string

	mu            sync.Mutex
	currentVolume int
	savedVolume   int
	isMuted       bool

	lastFooterWidth int
	animationFrame  int
	animating       atomic.Bool
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer

	runeKeys    map[rune]func()
	specialKeys map[tcell.Key]func()

	startOnce   sync.Once
	stopOnce    sync.Once
	quit        chan struct{}
	unsubscribe func()

	colors struct {
		background           tcell.Color
		foreground           tcell.Color
		borders              tcell.Color
		highlight            tcell.Color
		headerBackground     tcell.Color
		listHeaderBackground tcell.Color
		listHeaderForeground tcell.Color
		helpBackground       tcell.Color
		helpForeground       tcell.Color
		helpHotkey           tcell.Color
		genreTagBackground   tcell.Color
		modalBackground      tcell.Color
		errorForeground      tcell.Color
	}
}

func NewUI(ctl *player.Controller, dir *directory.Service, store *config.Store, volumeStore *VolumeStore, opts Options) *UI {
	cfg := store.Snapshot()

	ui := &UI{
		app:            tview.NewApplication(),
		player:         ctl,
		directory:      dir,
		store:          store,
		volumeStore:    volumeStore,
		theme:          cfg.Theme,
		opts:           opts,
		indicatorIndex: -1,
		snap:           ctl.Snapshot(),
		currentVolume:  cfg.Volume,
		savedVolume:    cfg.Volume,
		quit:           make(chan struct{}),
		playingSpinner: NewPlayingSpinner(),
	}

	theme := cfg.Theme
	ui.colors.background = config.GetColor(theme.Background)
	ui.colors.foreground = config.GetColor(theme.Foreground)
	ui.colors.borders = config.GetColor(theme.Borders)
	ui.colors.highlight = config.GetColor(theme.Highlight)
	ui.colors.headerBackground = config.GetColor(theme.HeaderBackground)
	ui.colors.listHeaderBackground = config.GetColor(theme.ListHeaderBack)
	ui.colors.listHeaderForeground = config.GetColor(theme.ListHeaderFore)
	ui.colors.helpBackground = config.GetColor(theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(theme.HelpHotkey)
	ui.colors.genreTagBackground = config.GetColor(theme.GenreTagBackground)
	ui.colors.modalBackground = config.GetColor(theme.ModalBackground)
	ui.colors.errorForeground = config.GetColor(theme.ErrorForeground)

	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.statusRenderer.SetStateColors(theme.ErrorForeground, theme.PausedForeground, theme.LoadingForeground)

	return ui
}

func (ui *UI) stop() {
	ui.stopOnce.Do(func() {
		ui.directory.StopPeriodicRefresh()
		close(ui.quit)
		if ui.unsubscribe != nil {
			ui.unsubscribe()
		}
		if err := ui.player.Send(player.Stop{}); err != nil {
			log.Debug().Err(err).Msg("Stop not sent")
		}
	})
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.fetchChannelsAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().SetTextAlign(tview.AlignCenter)
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().SetTextAlign(tview.AlignCenter)
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = ui.centered(content, 40, 3)
}

func renderProgressBar(percent int) string {
	const width = 30
	filled := min(max(percent, 0), 100) * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := renderProgressBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := renderProgressBar(p); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

// loadStage is one step of the startup sequence shown on the loading screen.
type loadStage struct {
	label string
	run   func(ctx context.Context) error
}

func (ui *UI) loadStages() []loadStage {
	return []loadStage{
		{"Connecting to SomaFM...", func(ctx context.Context) error {
			if _, err := ui.directory.Channels(ctx); err != nil {
				return fmt.Errorf("failed to fetch stations: %w", err)
			}
			return nil
		}},
		{"Loading configuration...", func(context.Context) error {
			if err := ui.store.CleanupFavorites(ui.directory.ValidIDs()); err != nil {
				log.Error().Err(err).Msg("Failed to save config")
			}
			return nil
		}},
		{"Building interface...", func(context.Context) error {
			ui.setupUI()
			ui.directory.StartPeriodicRefresh(StationRefreshInterval, ui.onStationsRefreshed)
			return nil
		}},
	}
}

// fetchChannelsAndInitUI runs the load stages, each for at least
// MinStatusDisplayTime, then swaps the loading screen for the main layout.
func (ui *UI) fetchChannelsAndInitUI() error {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	started := time.Now()
	stages := ui.loadStages()
	for i, stage := range stages {
		from, to := i*100/len(stages), (i+1)*100/len(stages)
		label := fmt.Sprintf("%s (%d/%d)", stage.label, i+1, len(stages))
		ui.app.QueueUpdateDraw(func() {
			ui.loadingText.SetText(label)
			ui.progressBar.SetText(renderProgressBar(from))
		})

		animated := make(chan struct{})
		go func() {
			defer close(animated)
			ui.animateProgress(from, to, MinStatusDisplayTime)
		}()

		stageStart := time.Now()
		err := stage.run(ctx)
		<-animated
		if err != nil {
			return err
		}
		log.Debug().Dur("took", time.Since(stageStart)).Msg(stage.label)
	}

	if elapsed := time.Since(started); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Int("stations", ui.directory.Count()).
		Dur("took", time.Since(started)).Msg("Startup finished")

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.stationList)
		ui.startOnce.Do(ui.startPlayerUpdates)
		ui.startFirstChannel()
	})

	return nil
}

// startFirstChannel applies the startup choice: a raw URL, a random channel,
// or the last channel (played when autostart is on).
func (ui *UI) startFirstChannel() {
	if ui.opts.StreamURL != "" {
		ui.playCustom(ui.opts.StreamURL)
		return
	}

	if ui.opts.StartRandom {
		ui.randomStation()
		return
	}

	cfg := ui.store.Snapshot()
	if cfg.LastChannel == "" {
		ui.selectAndShowStation(0)
		return
	}

	index := ui.directory.FindIndexByID(cfg.LastChannel)
	if index < 0 {
		log.Debug().Msgf("Last station '%s' not found, showing first station", cfg.LastChannel)
		ui.selectAndShowStation(0)
		return
	}

	if cfg.Autostart {
		log.Debug().Msgf("Autostart enabled, playing last station: %s", cfg.LastChannel)
		ui.stationList.Select(index+1, 0)
		ui.onStationSelected(index)
	} else {
		ui.selectAndShowStation(index)
	}
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.playerPanel.SetBackgroundColor(ui.colors.background)

	ui.stationList = ui.createStationListTable()
	ui.indicatorIndex = -1

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.stationList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.bindKeys()
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage(modalPage) || ui.pages.HasPage(errorPage) {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	bg := ui.colors.headerBackground

	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(bg)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(bg)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(bg)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tview.NewBox().SetBackgroundColor(bg), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(tview.NewBox().SetBackgroundColor(bg), 1, 0, false)
	textWithPadding.SetBackgroundColor(bg)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(bg), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(bg), 1, 0, false)
	headerFlex.SetBackgroundColor(bg)

	return headerFlex
}

func logoURL(c *channel.Channel) string {
	for _, u := range []string{c.XLImage, c.LargeImage, c.Image} {
		if u != "" {
			return u
		}
	}
	return ""
}

func (ui *UI) updateLogoPanel(c *channel.Channel) {
	url := logoURL(c)
	if url == "" {
		return
	}
	panel := ui.logoPanel

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		img, err := ui.directory.LoadImage(ctx, url)
		if err != nil {
			log.Debug().Err(err).Str("url", url).Msg("Failed to load logo")
			ui.app.QueueUpdateDraw(func() {
				panel.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
					tview.Print(screen, "No image", x, y, width, tview.AlignCenter, ui.colors.borders)
					return x, y, width, height
				})
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			panel.SetImage(img)
		})
	}()
}

func (ui *UI) showContentPanel() {
	ui.playerPanel.Clear()
	ui.playerPanel.AddItem(ui.createContentPanel(), 0, 1, false)
	ui.updateLogoPanel(ui.currentChannel)
	ui.updateTrackInfo()
}

func (ui *UI) play(cmd player.Play) {
	if err := ui.player.Send(cmd); err != nil {
		log.Error().Err(err).Msg("Failed to send play command")
		ui.showError(err)
	}
}

func (ui *UI) onStationSelected(index int) {
	c := ui.directory.Channel(index)
	if c == nil {
		return
	}

	log.Info().Msgf("Starting playback for station: %s", c.Title)

	ui.customURL = ""
	if ui.currentChannel == nil || ui.currentChannel.ID != c.ID || ui.trackChannelID != c.ID {
		ui.currentChannel = c
		ui.fetchInitialTrack(c.ID)
		ui.showContentPanel()
	}
	ui.play(player.Play{ChannelID: c.ID})

	go func() {
		if err := ui.store.SaveLastChannel(c.ID); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
		}
	}()
}

// playCustom plays a raw stream URL that is not in the channel list.
func (ui *UI) playCustom(url string) {
	ui.customURL = url
	ui.currentChannel = &channel.Channel{
		ID:          player.CustomChannelID,
		Title:       "Custom stream",
		Description: url,
	}
	ui.trackChannelID = ""
	ui.initialTrack = ""
	ui.showContentPanel()
	ui.play(player.Play{ChannelID: player.CustomChannelID, URL: url})
}

// replay restarts the channel the player was last on.
func (ui *UI) replay() {
	switch {
	case ui.customURL != "":
		ui.play(player.Play{ChannelID: player.CustomChannelID, URL: ui.customURL})
	case ui.snap.ChannelID != "":
		ui.play(player.Play{ChannelID: ui.snap.ChannelID})
	}
}

// fetchInitialTrack shows the channel's latest track from the songs API
// until the stream announces one itself.
func (ui *UI) fetchInitialTrack(channelID string) {
	ui.trackChannelID = channelID
	ui.initialTrack = ""

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), trackTimeout)
		defer cancel()

		track, err := ui.directory.CurrentTrack(ctx, channelID)
		if err != nil {
			log.Debug().Err(err).Msg("Failed to fetch song history, using lastPlaying")
			return
		}
		if track == "" {
			return
		}
		ui.app.QueueUpdateDraw(func() {
			if ui.trackChannelID != channelID {
				return
			}
			ui.initialTrack = track
			ui.updateTrackInfo()
		})
	}()
}

func (ui *UI) spacer() *tview.Box {
	return tview.NewBox().SetBackgroundColor(ui.colors.background)
}

// textView is a single styled text widget on the panel background.
func (ui *UI) textView(text string, color tcell.Color, wrap bool) *tview.TextView {
	tv := tview.NewTextView().
		SetText(text).
		SetWrap(wrap).
		SetTextColor(color)
	tv.SetBackgroundColor(ui.colors.background)
	return tv
}

func (ui *UI) createGenreTags(genres []string) *tview.Flex {
	row := tview.NewFlex().AddItem(ui.spacer(), 1, 0, false)
	row.SetBackgroundColor(ui.colors.background)

	if len(genres) == 0 {
		return row.AddItem(ui.textView("N/A", ui.colors.foreground, false), 3, 0, false)
	}

	for i, g := range genres {
		if i > 0 {
			row.AddItem(ui.spacer(), 1, 0, false)
		}
		tag := ui.textView(" "+g+" ", ui.colors.foreground, false).
			SetTextAlign(tview.AlignCenter)
		tag.SetBackgroundColor(ui.colors.genreTagBackground)
		row.AddItem(tag, len([]rune(g))+2, 0, false)
	}
	return row.AddItem(ui.spacer(), 0, 1, false)
}

func (ui *UI) label(text string) *tview.TextView {
	return ui.textView(text, ui.colors.foreground, false)
}

func (ui *UI) highlightText(text string) string {
	return fmt.Sprintf(" [%s]%s[-]", ui.colors.highlight.String(), tview.Escape(text))
}

// highlightView shows text in bold highlight color. SetDynamicColors is on so
// highlightText markup renders.
func (ui *UI) highlightView(text string, wrap bool) *tview.TextView {
	return ui.textView(ui.highlightText(text), ui.colors.highlight, wrap).
		SetDynamicColors(true).
		SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
}

func (ui *UI) createContentPanel() *tview.Flex {
	c := ui.currentChannel

	ui.logoPanel = tview.NewImage()
	ui.logoPanel.SetBackgroundColor(ui.colors.background)
	ui.logoPanel.SetAlign(tview.AlignLeft, tview.AlignTop)

	ui.stationNameView = ui.highlightView(c.Title, false)
	ui.currentTrackView = ui.highlightView(c.LastPlaying, true)
	description := ui.textView(" "+c.Description, ui.colors.foreground, true)

	fields := []struct {
		title  string
		value  tview.Primitive
		height int
	}{
		{" Station:", ui.stationNameView, 1},
		{" Playing:", ui.currentTrackView, 1},
		{" Genre:", ui.createGenreTags(c.Genres()), 1},
		{" Description:", description, 0},
	}

	info := tview.NewFlex().SetDirection(tview.FlexRow)
	info.SetBackgroundColor(ui.colors.background)
	for i, f := range fields {
		if i > 0 {
			info.AddItem(nil, 1, 0, false)
		}
		info.AddItem(ui.label(f.title), 1, 0, false)
		proportion := 0
		if f.height == 0 {
			proportion = 1
		}
		info.AddItem(f.value, f.height, proportion, false)
	}
	info.AddItem(ui.spacer(), 0, 1, false)

	ui.volumeView = ui.createGraphicalVolumeBar()

	logo := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.logoPanel, CoverHeight, 0, false).
		AddItem(nil, 0, 1, false)
	logo.SetBackgroundColor(ui.colors.background)

	panel := tview.NewFlex().
		AddItem(nil, 4, 0, false).
		AddItem(logo, CoverWidth, 0, false).
		AddItem(info, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false).
		AddItem(nil, 4, 0, false)
	panel.SetBackgroundColor(ui.colors.background)
	return panel
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	return ui.playingSpinner.Frames[ui.animationFrame%len(ui.playingSpinner.Frames)]
}

// startPlayerUpdates subscribes to player snapshots and starts the spinner.
// Both stop when the UI stops.
func (ui *UI) startPlayerUpdates() {
	updates, cancel := ui.player.Subscribe()
	ui.unsubscribe = cancel

	go func() {
		for snap := range updates {
			snap := snap
			ui.app.QueueUpdateDraw(func() {
				ui.applySnapshot(snap)
			})
		}
	}()

	go func() {
		ticker := time.NewTicker(ui.playingSpinner.FPS)
		defer ticker.Stop()

		for {
			select {
			case <-ui.quit:
				return
			case <-ticker.C:
				if !ui.animating.Load() {
					continue
				}
				health := ui.player.BufferHealth()
				ui.app.QueueUpdateDraw(func() {
					ui.animationFrame++
					ui.statusRenderer.AdvanceAnimation()
					ui.statusRenderer.SetBufferHealth(health)
					ui.updateStationListPlayingIndicator()
				})
			}
		}
	}()
}

func (ui *UI) applySnapshot(snap player.Snapshot) {
	if snap.Seq < ui.snap.Seq {
		return
	}
	ui.snap = snap

	switch snap.State {
	case player.StateBuffering, player.StatePlaying, player.StateReconnecting:
		ui.animating.Store(true)
	default:
		ui.animating.Store(false)
	}

	ui.updateTrackInfo()
	ui.updateStationListPlayingIndicator()

	if c := ui.currentChannel; c != nil && c.ID == player.CustomChannelID && snap.Stream.Name != "" && ui.stationNameView != nil {
		ui.stationNameView.SetText(ui.highlightText(snap.Stream.Name))
	}

	if snap.State == player.StateFailed && snap.Err != nil && snap.Err != ui.shownErr {
		ui.shownErr = snap.Err
		log.Error().Err(snap.Err).Msg("Playback failed")
		ui.showError(snap.Err)
	}
}

// trackText picks what the "Playing" line shows for the channel on screen:
// the stream's own title, else the songs API result, else the directory's
// last known track.
func trackText(snap player.Snapshot, channelID, initialTrack, lastPlaying string) string {
	if snap.ChannelID == channelID && snap.NowPlaying.ChannelID == channelID && snap.NowPlaying.Title != "" {
		return snap.NowPlaying.Title
	}
	if initialTrack != "" {
		return initialTrack
	}
	return lastPlaying
}

func (ui *UI) updateTrackInfo() {
	c := ui.currentChannel
	if ui.currentTrackView == nil || c == nil {
		return
	}

	initial := ""
	if ui.trackChannelID == c.ID {
		initial = ui.initialTrack
	}
	ui.currentTrackView.SetText(ui.highlightText(trackText(ui.snap, c.ID, initial, c.LastPlaying)))
}

func (ui *UI) onStationsRefreshed([]channel.Channel) {
	ui.app.QueueUpdateDraw(func() {
		ui.refreshStationTable()
	})
}

func (ui *UI) playSelected() {
	if index := ui.selectedIndex(); index >= 0 && index < ui.directory.Count() {
		ui.onStationSelected(index)
	}
}

func (ui *UI) togglePlayback() {
	switch ui.snap.State {
	case player.StatePlaying, player.StatePaused:
		if err := ui.player.TogglePause(); err != nil {
			log.Debug().Err(err).Msg("Pause toggle not sent")
		}
	default:
		ui.playSelected()
	}
}

func (ui *UI) stopPlayback() {
	if err := ui.player.Send(player.Stop{}); err != nil {
		log.Debug().Err(err).Msg("Stop not sent")
	}
}

// bindKeys fills the global key tables. Letter bindings are case-insensitive.
// The arrow keys double as volume controls.
func (ui *UI) bindKeys() {
	volumeUp := func() { ui.adjustVolume(VolumeStep) }
	volumeDown := func() { ui.adjustVolume(-VolumeStep) }

	ui.runeKeys = map[rune]func(){
		'q': ui.stop,
		' ': ui.togglePlayback,
		's': ui.stopPlayback,
		'>': ui.nextStation,
		'<': ui.prevStation,
		'r': ui.randomStation,
		'f': ui.toggleFavorite,
		'+': volumeUp,
		'=': volumeUp,
		'-': volumeDown,
		'_': volumeDown,
		'm': ui.toggleMute,
		'?': ui.showHelpModal,
		'a': ui.showAboutModal,
	}
	ui.specialKeys = map[tcell.Key]func(){
		tcell.KeyEnter:  ui.playSelected,
		tcell.KeyEscape: ui.stop,
		tcell.KeyRight:  volumeUp,
		tcell.KeyLeft:   volumeDown,
	}
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	action, ok := ui.specialKeys[event.Key()]
	if event.Key() == tcell.KeyRune {
		action, ok = ui.runeKeys[unicode.ToLower(event.Rune())]
	}
	if !ok {
		return event
	}
	action()
	return nil
}
