package config

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store serializes updates to a loaded Config and writes each one to disk.
// The player saves volume from its own goroutine while the UI toggles
// favorites, so every access goes through the mutex.
type Store struct {
	mu  sync.Mutex
	cfg *Config
}

func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{cfg: cfg}
}

// Snapshot returns a copy of the current config.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.cfg
	cp.Favorites = append([]string(nil), s.cfg.Favorites...)
	return cp
}

func (s *Store) SaveVolume(volume int) error {
	return s.update(func(c *Config) {
		c.Volume = ClampVolume(volume)
	})
}

func (s *Store) SaveLastChannel(channelID string) error {
	return s.update(func(c *Config) {
		c.LastChannel = channelID
	})
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Store) ToggleFavorite(channelID string) (bool, error) {
	var fav bool
	err := s.update(func(c *Config) {
		c.ToggleFavorite(channelID)
		fav = c.IsFavorite(channelID)
	})
	return fav, err
}

func (s *Store) IsFavorite(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.IsFavorite(channelID)
}

func (s *Store) CleanupFavorites(valid map[string]bool) error {
	return s.update(func(c *Config) {
		c.CleanupFavorites(valid)
	})
}

func (s *Store) update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	if err := s.cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("Failed to save config")
		return err
	}
	return nil
}
