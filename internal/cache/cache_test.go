package cache

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashKey(t *testing.T) {
	if got := hashKey(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("hashKey(\"\") = %q", got)
	}
	if got := hashKey("http://example.com/image.png"); len(got) != 32 {
		t.Errorf("hashKey() length = %d, want 32", len(got))
	}
	if hashKey("a") == hashKey("b") {
		t.Error("different keys share a hash")
	}
	if hashKey("a") != hashKey("a") {
		t.Error("hashKey is not stable")
	}
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

// age backdates a cached file.
func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
}

func TestSaveAndGetImage(t *testing.T) {
	c := New(t.TempDir(), DefaultExpiry)

	testURL := "http://example.com/test-image.png"
	if err := c.SaveImage(testURL, createTestImage(100, 100)); err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}

	img := c.GetImage(testURL)
	if img == nil {
		t.Fatal("GetImage() returned nil")
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("image size = %dx%d, want 100x100", b.Dx(), b.Dy())
	}

	if c.GetImage("http://example.com/other.png") != nil {
		t.Error("GetImage() for an unknown URL should return nil")
	}
}

func TestGetImageExpired(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)

	testURL := "http://example.com/expired-image.png"
	if err := c.SaveImage(testURL, createTestImage(50, 50)); err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}
	imagePath := filepath.Join(dir, ImageSubdir, hashKey(testURL)+".png")
	age(t, imagePath, 2*time.Hour)

	if c.GetImage(testURL) != nil {
		t.Error("GetImage() for an expired image should return nil")
	}
	if _, err := os.Stat(imagePath); !os.IsNotExist(err) {
		t.Error("expired image file should have been deleted")
	}
}

func TestPutAndGet(t *testing.T) {
	c := New(t.TempDir(), DefaultExpiry)

	if _, ok := c.Get("channels"); ok {
		t.Fatal("Get() hit on an empty cache")
	}
	if err := c.Put("channels", []byte(`[{"id":"groovesalad"}]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put("channels", []byte(`[{"id":"dronezone"}]`)); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	e, ok := c.Get("channels")
	if !ok {
		t.Fatal("Get() missed a stored entry")
	}
	if string(e.Data) != `[{"id":"dronezone"}]` {
		t.Errorf("Data = %s", e.Data)
	}
	if e.Age < 0 || e.Age > time.Minute {
		t.Errorf("Age = %v", e.Age)
	}

	leftovers, _ := filepath.Glob(filepath.Join(c.Dir(), DataSubdir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestGetExpired(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)

	if err := c.Put("channels", []byte("x")); err != nil {
		t.Fatal(err)
	}
	age(t, filepath.Join(dir, DataSubdir, hashKey("channels")+".cache"), 90*time.Minute)

	if _, ok := c.Get("channels"); ok {
		t.Error("Get() returned an expired entry")
	}
}

func TestCleanExpired(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)

	if err := c.SaveImage("http://example.com/old.png", createTestImage(4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveImage("http://example.com/new.png", createTestImage(4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("old", []byte("x")); err != nil {
		t.Fatal(err)
	}
	age(t, filepath.Join(dir, ImageSubdir, hashKey("http://example.com/old.png")+".png"), 2*time.Hour)
	age(t, filepath.Join(dir, DataSubdir, hashKey("old")+".cache"), 2*time.Hour)

	if err := c.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	images, _ := os.ReadDir(filepath.Join(dir, ImageSubdir))
	data, _ := os.ReadDir(filepath.Join(dir, DataSubdir))
	if len(images) != 1 || len(data) != 0 {
		t.Errorf("after cleanup: %d images, %d data files; want 1, 0", len(images), len(data))
	}
	if c.GetImage("http://example.com/new.png") == nil {
		t.Error("fresh image was removed")
	}
}

func TestCleanExpiredMissingDirectory(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope"), time.Hour)
	if err := c.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() error = %v", err)
	}
}

func TestGetCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}
	if !filepath.IsAbs(dir) || filepath.Base(dir) != AppName {
		t.Errorf("GetCacheDir() = %q", dir)
	}

	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	if c.Dir() != dir || c.expiry != DefaultExpiry {
		t.Errorf("NewCache() = %q, %v", c.Dir(), c.expiry)
	}
}
