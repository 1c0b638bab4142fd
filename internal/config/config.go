package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "SomaFM Player"
	AppTagline      = "Terminal radio player"
	AppProjectURL   = "https://github.com/glebovdev/somafm-player"
	AppProjectShort = "github.com/glebovdev/somafm-player"
	AppDonateURL    = "https://somafm.com/donate"
	AppDonateShort  = "somafm.com/donate"

	ConfigDir      = ".config/somafm"
	ConfigFileName = "config.yml"
	DefaultVolume  = 50
	MinVolume      = 0
	MaxVolume      = 100
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/somafm-player/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// UserAgent is sent with every stream and API request.
func UserAgent() string {
	return fmt.Sprintf("SomaFM-Player/%s", AppVersion)
}

type Theme struct {
	Background         string `yaml:"background"`
	Foreground         string `yaml:"foreground"`
	Borders            string `yaml:"borders"`
	Highlight          string `yaml:"highlight"`
	MutedVolume        string `yaml:"muted_volume"`
	HeaderBackground   string `yaml:"header_background"`
	ListHeaderBack     string `yaml:"list_header_background"`
	ListHeaderFore     string `yaml:"list_header_foreground"`
	HelpBackground     string `yaml:"help_background"`
	HelpForeground     string `yaml:"help_foreground"`
	HelpHotkey         string `yaml:"help_hotkey"`
	GenreTagBackground string `yaml:"genre_tag_background"`
	ModalBackground    string `yaml:"modal_background"`
	ErrorForeground    string `yaml:"error_foreground"`
	PausedForeground   string `yaml:"paused_foreground"`
	LoadingForeground  string `yaml:"loading_foreground"`
}

// Playback tunes the streaming pipeline and the reconnect policy.
type Playback struct {
	RetryBudget    int           `yaml:"retry_budget"`
	BackoffMin     time.Duration `yaml:"backoff_min"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
	QueueFrames    int           `yaml:"queue_frames"`
	FrameSize      int           `yaml:"frame_size"`
	SampleRate     int           `yaml:"sample_rate"`
}

type Config struct {
	Volume      int      `yaml:"volume"`
	LastChannel string   `yaml:"last_channel"`
	Autostart   bool     `yaml:"autostart"`
	Favorites   []string `yaml:"favorites"`
	Theme       Theme    `yaml:"theme"`
	Playback    Playback `yaml:"playback"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

// Load reads the config file, falling back to defaults when it does not exist.
// Invalid playback settings are replaced by their defaults and reported as a
// Config error alongside the usable config.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), fault.New(fault.Config, err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fault.Wrap(fault.Config, err, "failed to read config file")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fault.Wrap(fault.Config, err, "failed to parse config file")
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.Playback = cfg.Playback.WithDefaults()

	if err := cfg.Playback.Validate(); err != nil {
		log.Warn().Err(err).Msg("Invalid playback settings, using defaults")
		cfg.Playback = DefaultPlayback()
		return cfg, err
	}

	return cfg, nil
}

// WithDefaults fills unset (zero) settings. A zero retry budget is kept: it
// disables reconnection.
func (p Playback) WithDefaults() Playback {
	d := DefaultPlayback()
	if p.BackoffMin == 0 {
		p.BackoffMin = d.BackoffMin
	}
	if p.BackoffMax == 0 {
		p.BackoffMax = max(d.BackoffMax, p.BackoffMin)
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = d.ReadTimeout
	}
	if p.CleanupTimeout == 0 {
		p.CleanupTimeout = d.CleanupTimeout
	}
	if p.QueueFrames == 0 {
		p.QueueFrames = d.QueueFrames
	}
	if p.FrameSize == 0 {
		p.FrameSize = d.FrameSize
	}
	if p.SampleRate == 0 {
		p.SampleRate = d.SampleRate
	}
	return p
}

// Validate reports the first out-of-range playback setting.
func (p Playback) Validate() error {
	switch {
	case p.RetryBudget < 0:
		return fault.Newf(fault.Config, "retry_budget must not be negative, got %d", p.RetryBudget)
	case p.BackoffMin <= 0:
		return fault.Newf(fault.Config, "backoff_min must be positive, got %v", p.BackoffMin)
	case p.BackoffMax < p.BackoffMin:
		return fault.Newf(fault.Config, "backoff_max %v is below backoff_min %v", p.BackoffMax, p.BackoffMin)
	case p.ReadTimeout <= 0:
		return fault.Newf(fault.Config, "read_timeout must be positive, got %v", p.ReadTimeout)
	case p.CleanupTimeout <= 0:
		return fault.Newf(fault.Config, "cleanup_timeout must be positive, got %v", p.CleanupTimeout)
	case p.QueueFrames < 1:
		return fault.Newf(fault.Config, "queue_frames must be at least 1, got %d", p.QueueFrames)
	case p.FrameSize < 64:
		return fault.Newf(fault.Config, "frame_size must be at least 64, got %d", p.FrameSize)
	case p.SampleRate < 8000 || p.SampleRate > 192000:
		return fault.Newf(fault.Config, "sample_rate %d is out of range", p.SampleRate)
	}
	return nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = ""
	return nil
}

func DefaultPlayback() Playback {
	return Playback{
		RetryBudget:    5,
		BackoffMin:     500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		ReadTimeout:    5 * time.Second,
		CleanupTimeout: 2 * time.Second,
		QueueFrames:    64,
		FrameSize:      1024,
		SampleRate:     44100,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Volume:      DefaultVolume,
		LastChannel: "",
		Autostart:   false,
		Favorites:   []string{},
		Theme: Theme{
			Background:         "#1a1b25",
			Foreground:         "#a3aacb",
			Borders:            "#40445b",
			Highlight:          "#ff9d65",
			MutedVolume:        "#fe0702",
			HeaderBackground:   "#473533",
			ListHeaderBack:     "#3a3d4f",
			ListHeaderFore:     "#c8d0e8",
			HelpBackground:     "#2b2d3a",
			HelpForeground:     "#9aa3c6",
			HelpHotkey:         "#ff9d65",
			GenreTagBackground: "#40445b",
			ModalBackground:    "#232533",
			ErrorForeground:    "#ff5555",
			PausedForeground:   "#f1fa8c",
			LoadingForeground:  "#8be9fd",
		},
		Playback: DefaultPlayback(),
	}
}

func (c *Config) IsFavorite(channelID string) bool {
	return slices.Contains(c.Favorites, channelID)
}

func (c *Config) ToggleFavorite(channelID string) {
	if i := slices.Index(c.Favorites, channelID); i >= 0 {
		c.Favorites = slices.Delete(c.Favorites, i, i+1)
		return
	}
	c.Favorites = append(c.Favorites, channelID)
}

// CleanupFavorites drops favorites that are no longer in the channel list.
func (c *Config) CleanupFavorites(valid map[string]bool) {
	c.Favorites = slices.DeleteFunc(c.Favorites, func(id string) bool {
		return !valid[id]
	})
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
