// Package audio turns a compressed byte stream into PCM frames and hands them
// to an output device at the pace the device asks for them.
package audio

import (
	"bytes"
	"fmt"

	"github.com/glebovdev/somafm-player/internal/fault"
)

// Format is a detected container or codec.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatWAV
	FormatAAC
	FormatOgg
	FormatFLAC
)

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "MP3"
	case FormatWAV:
		return "WAV"
	case FormatAAC:
		return "AAC"
	case FormatOgg:
		return "OGG"
	case FormatFLAC:
		return "FLAC"
	default:
		return "unknown"
	}
}

// Supported reports whether the package can decode f.
func (f Format) Supported() bool {
	return f == FormatMP3 || f == FormatWAV
}

// ProbeSize is how many leading bytes Detect is given.
const ProbeSize = 8192

// Detect identifies the format from the first bytes of a stream. It returns the
// offset where decodable data starts, since a live MP3 stream may be joined in
// the middle of a frame. Recognized but unsupported formats and unknown data
// return a Format error.
func Detect(peek []byte) (Format, int, error) {
	switch {
	case bytes.HasPrefix(peek, []byte("ID3")):
		return FormatMP3, 0, nil
	case len(peek) >= 12 && bytes.Equal(peek[:4], []byte("RIFF")) && bytes.Equal(peek[8:12], []byte("WAVE")):
		return FormatWAV, 0, nil
	case bytes.HasPrefix(peek, []byte("OggS")):
		return FormatOgg, 0, unsupported(FormatOgg)
	case bytes.HasPrefix(peek, []byte("fLaC")):
		return FormatFLAC, 0, unsupported(FormatFLAC)
	}

	for i := 0; i+3 < len(peek); i++ {
		if peek[i] != 0xFF || peek[i+1]&0xE0 != 0xE0 {
			continue
		}
		if isADTSHeader(peek[i:]) {
			return FormatAAC, i, unsupported(FormatAAC)
		}
		if isMPEGAudioHeader(peek[i:]) && confirmMPEGFrame(peek, i) {
			return FormatMP3, i, nil
		}
	}
	return FormatUnknown, 0, fault.Newf(fault.Format, "unrecognized audio stream (%d bytes probed)", len(peek))
}

func unsupported(f Format) error {
	return fault.Newf(fault.Format, "unsupported audio format %s", f)
}

// isADTSHeader matches the 12-bit ADTS sync with layer 0.
func isADTSHeader(b []byte) bool {
	return b[0] == 0xFF && b[1]&0xF6 == 0xF0
}

// isMPEGAudioHeader checks the sync word and rejects reserved version, layer,
// bitrate and sample-rate values.
func isMPEGAudioHeader(b []byte) bool {
	version := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	bitrate := b[2] >> 4
	rate := (b[2] >> 2) & 0x03
	return version != 0x01 && layer != 0x00 && bitrate != 0x0F && bitrate != 0x00 && rate != 0x03
}

var mpegBitrates = [...][15]int{
	// MPEG-1 layers I, II, III
	{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},
	// MPEG-2 and 2.5 layer I, then layers II and III
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
	{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
}

var mpegSampleRates = map[byte][3]int{
	0x03: {44100, 48000, 32000},
	0x02: {22050, 24000, 16000},
	0x00: {11025, 12000, 8000},
}

// mpegFrameLength returns the size in bytes of the frame whose header starts
// b. b must already pass isMPEGAudioHeader.
func mpegFrameLength(b []byte) int {
	version := (b[1] >> 3) & 0x03
	layer := 4 - int((b[1]>>1)&0x03) // 1, 2 or 3
	padding := int((b[2] >> 1) & 0x01)

	table := layer - 1
	if version != 0x03 {
		table = 4
		if layer == 1 {
			table = 3
		}
	}
	bitrate := mpegBitrates[table][b[2]>>4] * 1000
	rate := mpegSampleRates[version][(b[2]>>2)&0x03]

	switch {
	case layer == 1:
		return (12*bitrate/rate + padding) * 4
	case layer == 3 && version != 0x03:
		return 72*bitrate/rate + padding
	default:
		return 144*bitrate/rate + padding
	}
}

// confirmMPEGFrame requires a second header of the same version, layer and
// sample rate right after the frame at i. When the probe ends before that
// header it is accepted only if the probe is short, i.e. the stream ended.
func confirmMPEGFrame(peek []byte, i int) bool {
	next := i + mpegFrameLength(peek[i:])
	if next+4 > len(peek) {
		return len(peek) < ProbeSize
	}
	h, n := peek[i:], peek[next:]
	return n[0] == 0xFF && n[1]&0xE0 == 0xE0 &&
		isMPEGAudioHeader(n) &&
		n[1]&0xFE == h[1]&0xFE &&
		n[2]&0x0C == h[2]&0x0C
}

func (f Format) describe(offset int) string {
	if offset == 0 {
		return f.String()
	}
	return fmt.Sprintf("%s (skipped %d bytes)", f, offset)
}
