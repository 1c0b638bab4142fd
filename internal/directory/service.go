// Package directory keeps the SomaFM channel list and resolves channels to
// stream URLs.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"sync"
	"time"

	"github.com/glebovdev/somafm-player/internal/api"
	"github.com/glebovdev/somafm-player/internal/cache"
	"github.com/glebovdev/somafm-player/internal/channel"
	"github.com/rs/zerolog/log"
)

const (
	// ChannelListTTL is how long a cached channel list is used without asking
	// the API.
	ChannelListTTL = time.Hour
	channelListKey = "channels.json"
	fetchTimeout   = 15 * time.Second
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoPlaylists    = errors.New("channel has no playlists")
)

// Service holds the channel list, sorted by listeners, and the stream URLs of
// every playlist resolved so far. The cache is optional.
type Service struct {
	api   *api.Client
	cache *cache.Cache

	mu            sync.RWMutex
	channels      []channel.Channel
	streams       map[string][]string
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func([]channel.Channel)
}

func NewService(client *api.Client, diskCache *cache.Cache) *Service {
	if diskCache != nil {
		go func() {
			if err := diskCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return &Service{
		api:     client,
		cache:   diskCache,
		streams: make(map[string][]string),
	}
}

// Channels returns the channel list. A cached list younger than
// ChannelListTTL is used as is; an older one only when the API fails.
func (s *Service) Channels(ctx context.Context) ([]channel.Channel, error) {
	cached, age, hasCached := s.loadCached()
	if hasCached && age < ChannelListTTL {
		log.Debug().Dur("age", age).Int("count", len(cached)).Msg("Channel list loaded from cache")
		s.setChannels(cached)
		return slices.Clone(cached), nil
	}

	channels, err := s.Refresh(ctx)
	if err == nil {
		return channels, nil
	}
	if hasCached {
		log.Warn().Err(err).Dur("age", age).Msg("Channel list fetch failed, using cached copy")
		s.setChannels(cached)
		return slices.Clone(cached), nil
	}
	return nil, err
}

// Refresh fetches the channel list from the API and caches it.
func (s *Service) Refresh(ctx context.Context) ([]channel.Channel, error) {
	channels, err := s.api.Channels(ctx)
	if err != nil {
		return nil, err
	}
	channel.SortByListeners(channels)
	s.setChannels(channels)
	s.saveCached(channels)
	return slices.Clone(channels), nil
}

func (s *Service) setChannels(channels []channel.Channel) {
	s.mu.Lock()
	s.channels = channels
	s.mu.Unlock()
}

func (s *Service) loadCached() ([]channel.Channel, time.Duration, bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	entry, ok := s.cache.Get(channelListKey)
	if !ok {
		return nil, 0, false
	}

	var channels []channel.Channel
	if err := json.Unmarshal(entry.Data, &channels); err != nil || len(channels) == 0 {
		log.Debug().Err(err).Msg("Ignoring unreadable cached channel list")
		return nil, 0, false
	}
	return channels, entry.Age, true
}

func (s *Service) saveCached(channels []channel.Channel) {
	if s.cache == nil || len(channels) == 0 {
		return
	}
	data, err := json.Marshal(channels)
	if err == nil {
		err = s.cache.Put(channelListKey, data)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Failed to cache channel list")
	}
}

// CachedChannels returns a copy of the current list without fetching.
func (s *Service) CachedChannels() []channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

func (s *Service) ValidIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool, len(s.channels))
	for _, c := range s.channels {
		ids[c.ID] = true
	}
	return ids
}

func (s *Service) FindIndexByID(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.IndexFunc(s.channels, func(c channel.Channel) bool { return c.ID == channelID })
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// Channel returns a copy of the channel at index, or nil when out of range.
// A copy stays valid when a refresh replaces the list.
func (s *Service) Channel(index int) *channel.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.channels) {
		return nil
	}
	c := s.channels[index]
	return &c
}

func (s *Service) ChannelByID(channelID string) *channel.Channel {
	return s.Channel(s.FindIndexByID(channelID))
}

// StreamURLs resolves a channel to the stream URLs of its MP3 playlists,
// most preferred first. Channels without MP3 fall back to all playlists.
func (s *Service) StreamURLs(ctx context.Context, channelID string) ([]string, error) {
	c := s.ChannelByID(channelID)
	if c == nil && s.Count() == 0 {
		if _, err := s.Channels(ctx); err != nil {
			return nil, fmt.Errorf("loading channel list: %w", err)
		}
		c = s.ChannelByID(channelID)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}

	playlists := c.PlaylistURLsFor("mp3")
	if len(playlists) == 0 {
		playlists = c.PlaylistURLs()
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPlaylists, channelID)
	}

	var urls []string
	var errs []error
	for _, playlistURL := range playlists {
		streams, err := s.resolve(ctx, playlistURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msgf("Failed to resolve playlist: %s", playlistURL)
			errs = append(errs, err)
			continue
		}
		for _, u := range streams {
			if !slices.Contains(urls, u) {
				urls = append(urls, u)
			}
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no stream URLs for channel %s: %w", channelID, errors.Join(errs...))
	}
	log.Debug().Msgf("Resolved %s to %d stream URLs", channelID, len(urls))
	return urls, nil
}

func (s *Service) resolve(ctx context.Context, playlistURL string) ([]string, error) {
	s.mu.RLock()
	streams, ok := s.streams[playlistURL]
	s.mu.RUnlock()
	if ok {
		return streams, nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	res, err := s.api.Fetch(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	streams, err = ParsePlaylist(res.Body, res.ContentType, playlistURL)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.streams[playlistURL] = streams
	s.mu.Unlock()
	return streams, nil
}

// CurrentTrack returns the channel's newest track from the songs API.
func (s *Service) CurrentTrack(ctx context.Context, channelID string) (string, error) {
	return s.api.CurrentTrack(ctx, channelID)
}

// LoadImage returns a channel logo, from disk when cached.
func (s *Service) LoadImage(ctx context.Context, url string) (image.Image, error) {
	if s.cache != nil {
		if img := s.cache.GetImage(url); img != nil {
			log.Debug().Str("url", url).Msg("Image loaded from cache")
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	res, err := s.api.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", url, err)
	}

	if s.cache != nil {
		go func() {
			if err := s.cache.SaveImage(url, img); err != nil {
				log.Debug().Err(err).Str("url", url).Msg("Failed to cache image")
			}
		}()
	}
	return img, nil
}

// StartPeriodicRefresh refreshes the channel list every interval and passes
// each new list to callback.
func (s *Service) StartPeriodicRefresh(interval time.Duration, callback func([]channel.Channel)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic channel refresh")
}

func (s *Service) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
		log.Debug().Msg("Stopped periodic channel refresh")
	}
}

func (s *Service) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	channels, err := s.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.mu.RLock()
	callback := s.onRefresh
	s.mu.RUnlock()
	if callback != nil {
		callback(channels)
	}
	log.Debug().Int("count", len(channels)).Msg("Channel data refreshed in background")
}
