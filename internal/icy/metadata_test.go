package icy

import (
	"errors"
	"testing"
)

func TestParseBlock(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantErr   error
	}{
		{"simple", "StreamTitle='A - B';", "A - B", nil},
		{"padded", "StreamTitle='A - B';\x00\x00\x00\x00", "A - B", nil},
		{"two fields", "StreamTitle='Song';StreamUrl='http://x';", "Song", nil},
		{"empty title", "StreamTitle='';", "", nil},
		{"no title field", "StreamUrl='http://x';", "", nil},
		{"quote in value", "StreamTitle='Rock 'n' Roll';", "Rock 'n' Roll", nil},
		{"only padding", "\x00\x00\x00\x00", "", ErrEmptyBlock},
		{"missing terminator", "StreamTitle='A - B'", "", ErrMalformed},
		{"no key", "='x';", "", ErrMalformed},
		{"garbage", "hello world", "", ErrMalformed},
		{"invalid utf8", "StreamTitle='\xff\xfe';", "", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, err := ParseBlock([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseBlock() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBlock() error = %v", err)
			}
			if block.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", block.Title, tt.wantTitle)
			}
		})
	}
}

func TestBuildBlock(t *testing.T) {
	if got := BuildBlock(""); len(got) != 1 || got[0] != 0 {
		t.Errorf("BuildBlock(\"\") = %v, want [0]", got)
	}

	got := BuildBlock("StreamTitle='A - B';")
	if got[0] != 2 || len(got) != 33 {
		t.Errorf("BuildBlock() length byte %d, size %d; want 2, 33", got[0], len(got))
	}

	long := make([]byte, MaxBlockSize+100)
	for i := range long {
		long[i] = 'x'
	}
	got = BuildBlock(string(long))
	if got[0] != 255 || len(got) != 1+MaxBlockSize {
		t.Errorf("oversized block: length byte %d, size %d", got[0], len(got))
	}
}

func TestTitleBlockRoundTrip(t *testing.T) {
	enc := TitleBlock("Hearts of Space - Orbit")
	block, err := ParseBlock(enc[1:])
	if err != nil {
		t.Fatalf("ParseBlock() error = %v", err)
	}
	if block.Title != "Hearts of Space - Orbit" {
		t.Errorf("Title = %q", block.Title)
	}
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		title      string
		wantArtist string
		wantSong   string
	}{
		{"Artist - Song", "Artist", "Song"},
		{"A - B - C", "A", "B - C"},
		{"Just a title", "", "Just a title"},
		{" - Song", "", "- Song"},
		{"Artist - ", "", "Artist -"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			artist, song := SplitTitle(tt.title)
			if artist != tt.wantArtist || song != tt.wantSong {
				t.Errorf("SplitTitle(%q) = (%q, %q), want (%q, %q)",
					tt.title, artist, song, tt.wantArtist, tt.wantSong)
			}
		})
	}
}
