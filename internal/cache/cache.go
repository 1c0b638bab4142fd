// Package cache keeps downloaded directory data and channel logos on disk.
package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long entries are kept (7 days).
	DefaultExpiry = 7 * 24 * time.Hour
	ImageSubdir   = "images"
	DataSubdir    = "data"
	// AppName is used for the cache directory name.
	AppName = "somafm"
)

// Cache is a directory of files keyed by the MD5 of a URL or name. Entries
// older than the expiry are treated as missing and removed.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// New returns a cache rooted at baseDir.
func New(baseDir string, expiry time.Duration) *Cache {
	return &Cache{baseDir: baseDir, expiry: expiry}
}

// NewCache returns a cache in the user cache directory with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}
	return New(cacheDir, DefaultExpiry), nil
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(userCacheDir, AppName), nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.baseDir
}

func hashKey(key string) string {
	hash := md5.Sum([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) path(subdir, key, ext string) string {
	return filepath.Join(c.baseDir, subdir, hashKey(key)+ext)
}

// Entry is a cached blob and how long ago it was written.
type Entry struct {
	Data []byte
	Age  time.Duration
}

// Get returns the data stored under key.
func (c *Cache) Get(key string) (*Entry, bool) {
	p := c.path(DataSubdir, key, ".cache")
	age, ok := c.fresh(p)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(p)
	if err != nil {
		log.Debug().Err(err).Str("file", p).Msg("Failed to read cache file")
		return nil, false
	}
	return &Entry{Data: data, Age: age}, true
}

// Put stores data under key.
func (c *Cache) Put(key string, data []byte) error {
	return c.write(c.path(DataSubdir, key, ".cache"), data)
}

// GetImage returns a cached image by URL, or nil if it is missing or expired.
func (c *Cache) GetImage(url string) image.Image {
	p := c.path(ImageSubdir, url, ".png")
	if _, ok := c.fresh(p); !ok {
		return nil
	}

	file, err := os.Open(p)
	if err != nil {
		return nil
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		log.Debug().Err(err).Str("file", p).Msg("Failed to decode cached image")
		return nil
	}
	return img
}

// SaveImage stores an image as PNG, keyed by its URL.
func (c *Cache) SaveImage(url string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return c.write(c.path(ImageSubdir, url, ".png"), buf.Bytes())
}

// fresh reports the age of the file at p, removing it when it has expired.
func (c *Cache) fresh(p string) (time.Duration, bool) {
	info, err := os.Stat(p)
	if err != nil {
		return 0, false
	}

	age := time.Since(info.ModTime())
	if age > c.expiry {
		if err := os.Remove(p); err != nil {
			log.Debug().Err(err).Str("file", p).Msg("Failed to remove expired cache file")
		}
		return 0, false
	}
	return age, true
}

// write replaces the file at p through a temp file so readers never see a
// partial entry.
func (c *Cache) write(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to store cache file: %w", err)
	}
	return nil
}

// CleanExpired removes entries older than the expiry.
func (c *Cache) CleanExpired() error {
	now := time.Now()
	var removed, failed int

	for _, subdir := range []string{ImageSubdir, DataSubdir} {
		dir := filepath.Join(c.baseDir, subdir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read cache directory: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
				continue
			}
			if now.Sub(info.ModTime()) <= c.expiry {
				continue
			}

			filePath := filepath.Join(dir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}
	return nil
}
