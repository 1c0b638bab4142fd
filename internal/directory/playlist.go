package directory

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var ErrNotPlaylist = errors.New("not a PLS or M3U playlist")

// ParsePlaylist extracts the stream URLs of a PLS or M3U playlist, in the
// order listed. The format is chosen by content type, then file extension,
// then content.
func ParsePlaylist(body []byte, contentType, url string) ([]string, error) {
	var urls []string
	switch {
	case isPLS(body, contentType, url):
		urls = parsePLS(body)
	case isM3U(body, contentType, url):
		urls = parseM3U(body)
	default:
		return nil, fmt.Errorf("%w (Content-Type: %s)", ErrNotPlaylist, contentType)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no stream URL found in playlist %s", url)
	}
	return urls, nil
}

func isPLS(body []byte, contentType, url string) bool {
	return strings.Contains(contentType, "audio/x-scpls") ||
		strings.Contains(contentType, "application/pls+xml") ||
		strings.HasSuffix(url, ".pls") ||
		bytes.Contains(body, []byte("[playlist]")) ||
		bytes.Contains(body, []byte("File1="))
}

func isM3U(body []byte, contentType, url string) bool {
	trimmed := bytes.TrimSpace(body)
	return strings.Contains(contentType, "mpegurl") ||
		strings.HasSuffix(url, ".m3u") ||
		strings.HasSuffix(url, ".m3u8") ||
		bytes.HasPrefix(trimmed, []byte("#EXTM3U")) ||
		isStreamURL(string(trimmed))
}

func isStreamURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// parsePLS returns the FileN entries.
func parsePLS(body []byte) []string {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "File") {
			continue
		}
		_, url, ok := strings.Cut(line, "=")
		if url = strings.TrimSpace(url); ok && url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// parseM3U returns the URL lines, skipping comments and directives.
func parseM3U(body []byte) []string {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if isStreamURL(line) {
			urls = append(urls, line)
		}
	}
	return urls
}
