// Package channel defines the SomaFM channel directory entries.
package channel

import (
	"slices"
	"strconv"
	"strings"
)

// Playlist is one published playlist of a channel.
type Playlist struct {
	URL     string `json:"url"`
	Format  string `json:"format"`  // "mp3", "aac", "aacp"
	Quality string `json:"quality"` // "highest", "high", "low"
}

// Channel is a SomaFM channel as listed by channels.json.
type Channel struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DJ          string     `json:"dj"`
	DJMail      string     `json:"djmail"`
	Genre       string     `json:"genre"` // pipe-separated
	Image       string     `json:"image"`
	LargeImage  string     `json:"largeimage"`
	XLImage     string     `json:"xlimage"`
	Twitter     string     `json:"twitter"`
	Updated     string     `json:"updated"`
	Playlists   []Playlist `json:"playlists"`
	Preroll     []string   `json:"preroll"`
	Listeners   string     `json:"listeners"`
	LastPlaying string     `json:"lastPlaying"`
}

// PlaylistURLs returns the playlist URLs in playback preference: MP3 at the
// highest quality, then other MP3, then everything else.
func (c *Channel) PlaylistURLs() []string {
	urls := c.PlaylistURLsFor("mp3")
	for _, p := range c.Playlists {
		if p.Format != "mp3" {
			urls = append(urls, p.URL)
		}
	}
	return urls
}

// PlaylistURLsFor returns the playlists of one format, highest quality first.
func (c *Channel) PlaylistURLsFor(format string) []string {
	best := make([]string, 0, len(c.Playlists))
	var rest []string
	for _, p := range c.Playlists {
		switch {
		case p.Format != format:
		case p.Quality == "highest":
			best = append(best, p.URL)
		default:
			rest = append(rest, p.URL)
		}
	}
	return append(best, rest...)
}

// Genres splits the pipe-separated genre field.
func (c *Channel) Genres() []string {
	var genres []string
	for _, g := range strings.Split(c.Genre, "|") {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// ListenerCount parses Listeners; ok is false when it is not a number.
func (c *Channel) ListenerCount() (n int, ok bool) {
	n, err := strconv.Atoi(c.Listeners)
	return n, err == nil
}

// SortByListeners orders channels by listener count, busiest first. Channels
// without a count go last.
func SortByListeners(channels []Channel) {
	slices.SortStableFunc(channels, func(a, b Channel) int {
		na, oka := a.ListenerCount()
		nb, okb := b.ListenerCount()
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return 1
		case !okb:
			return -1
		}
		return nb - na
	})
}
