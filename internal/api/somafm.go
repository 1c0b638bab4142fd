// Package api is the HTTP client for the SomaFM directory API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebovdev/somafm-player/internal/channel"
	"github.com/go-resty/resty/v2"
)

const (
	BaseURL        = "https://api.somafm.com"
	requestTimeout = 30 * time.Second
)

// Client talks to the SomaFM API. It also fetches the playlists and images the
// API links to.
type Client struct {
	client *resty.Client
}

// NewClient returns a client for the public API.
func NewClient(userAgent string) *Client {
	return NewClientWithBaseURL(BaseURL, userAgent)
}

// NewClientWithBaseURL returns a client for an API mirror or a test server.
func NewClientWithBaseURL(baseURL, userAgent string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout)
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return &Client{client: c}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Status)
}

// Channels fetches the channel list.
func (c *Client) Channels(ctx context.Context) ([]channel.Channel, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/channels.json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channels: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{URL: "/channels.json", StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var response struct {
		Channels []channel.Channel `json:"channels"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse channels response: %w", err)
	}
	return response.Channels, nil
}

type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Date   string `json:"date"`
}

type SongsResponse struct {
	ID    string     `json:"id"`
	Songs []SongInfo `json:"songs"`
}

// RecentSongs fetches the song history of a channel, newest first.
func (c *Client) RecentSongs(ctx context.Context, channelID string) (*SongsResponse, error) {
	path := fmt.Sprintf("/songs/%s.json", channelID)
	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch songs for channel %s: %w", channelID, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{URL: path, StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	var response SongsResponse
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse songs response: %w", err)
	}
	return &response, nil
}

// CurrentTrack returns the newest song of a channel as "Artist - Title", or
// just the title when the artist is unknown. It returns "" when the history
// is empty or has no title.
func (c *Client) CurrentTrack(ctx context.Context, channelID string) (string, error) {
	songs, err := c.RecentSongs(ctx, channelID)
	if err != nil {
		return "", err
	}
	if len(songs.Songs) == 0 {
		return "", nil
	}

	song := songs.Songs[0]
	switch {
	case song.Title == "":
		return "", nil
	case song.Artist == "":
		return song.Title, nil
	}
	return song.Artist + " - " + song.Title, nil
}

// Resource is a fetched document.
type Resource struct {
	Body        []byte
	ContentType string
}

// Fetch downloads an absolute URL such as a playlist or a channel image.
func (c *Client) Fetch(ctx context.Context, url string) (*Resource, error) {
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	return &Resource{Body: resp.Body(), ContentType: resp.Header().Get("Content-Type")}, nil
}
