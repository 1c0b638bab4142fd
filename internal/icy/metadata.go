package icy

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TitleKey is the metadata field carrying the current track.
const TitleKey = "StreamTitle"

// MaxBlockSize is the largest metadata payload a single length byte can describe.
const MaxBlockSize = 255 * BlockUnit

var (
	// ErrEmptyBlock is returned for a block that holds only NUL padding.
	ErrEmptyBlock = errors.New("empty metadata block")
	// ErrMalformed is returned for text that is not valid UTF-8 or not made of
	// terminated KEY='VALUE'; pairs.
	ErrMalformed = errors.New("malformed metadata block")
)

// Block is one decoded metadata announcement.
type Block struct {
	Raw    string
	Fields map[string]string
	Title  string
}

// ParseBlock decodes the text of a metadata block. Values may contain single
// quotes; a pair ends only at the two-byte sequence "';".
func ParseBlock(raw []byte) (Block, error) {
	text := bytes.TrimRight(raw, "\x00")
	text = bytes.TrimSpace(text)
	if len(text) == 0 {
		return Block{}, ErrEmptyBlock
	}
	if !utf8.Valid(text) {
		return Block{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}

	s := string(text)
	block := Block{Raw: s, Fields: make(map[string]string)}

	for rest := s; rest != ""; {
		eq := strings.Index(rest, "='")
		if eq <= 0 {
			return Block{}, fmt.Errorf("%w: expected KEY='VALUE' in %q", ErrMalformed, rest)
		}
		key := rest[:eq]
		rest = rest[eq+2:]

		end := strings.Index(rest, "';")
		if end < 0 {
			return Block{}, fmt.Errorf("%w: unterminated value for %s", ErrMalformed, key)
		}
		block.Fields[key] = rest[:end]
		rest = strings.TrimLeft(rest[end+2:], " \x00")
	}

	block.Title = strings.TrimSpace(block.Fields[TitleKey])
	return block, nil
}

// BuildBlock encodes text as a length byte followed by the NUL-padded payload.
// Empty text yields the single byte 0x00. Text longer than MaxBlockSize is truncated.
func BuildBlock(text string) []byte {
	if text == "" {
		return []byte{0x00}
	}

	payload := []byte(text)
	if len(payload) > MaxBlockSize {
		payload = payload[:MaxBlockSize]
	}

	units := (len(payload) + BlockUnit - 1) / BlockUnit
	out := make([]byte, 1+units*BlockUnit)
	out[0] = byte(units)
	copy(out[1:], payload)
	return out
}

// TitleBlock is BuildBlock for a single StreamTitle pair.
func TitleBlock(title string) []byte {
	return BuildBlock(fmt.Sprintf("%s='%s';", TitleKey, title))
}

// SplitTitle splits an "Artist - Song" title. When there is no separator, or
// either side is empty, the whole title is returned as the song.
func SplitTitle(title string) (artist, song string) {
	if i := strings.Index(title, " - "); i >= 0 {
		artist = strings.TrimSpace(title[:i])
		song = strings.TrimSpace(title[i+3:])
		if artist != "" && song != "" {
			return artist, song
		}
	}
	return "", strings.TrimSpace(title)
}
