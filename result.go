// SPDX-License-Identifier: MIT

package hlsforge

import "encoding/hex"

// Segment is one transcoded media segment: its playlist-relative name,
// its bytes, and the duration the encoder measured for it.
type Segment struct {
	Name     string
	Data     []byte
	Duration float64
}

// EncryptionInfo carries a rendition's key material back to the caller,
// who owns publishing the key at KeyURI.
type EncryptionInfo struct {
	Key    []byte
	IV     []byte
	KeyURI string
}

// IVHex renders the IV in the playlist's 32-hex-character form.
func (e EncryptionInfo) IVHex() string {
	return hex.EncodeToString(e.IV)
}

// ResolutionOutput is the complete artifact set of one rendition.
type ResolutionOutput struct {
	Width  int
	Height int

	// PlaylistName is the media playlist's name as referenced by the
	// master playlist, e.g. "720p.m3u8".
	PlaylistName string
	Playlist     []byte
	Segments     []Segment

	// Bandwidth is the measured average bitrate in bits per second:
	// total segment bytes times eight over total segment duration.
	Bandwidth int64

	// Encryption is non-nil when the rendition's segments are
	// AES-128 encrypted.
	Encryption *EncryptionInfo
}

// MasterOutput is the rendered master playlist.
type MasterOutput struct {
	Name string
	Data []byte
}

// TranscodeResult is the in-memory bundle a successful job produces:
// one output per requested profile, in profile order, plus the master
// playlist referencing them by descending measured bandwidth.
type TranscodeResult struct {
	Master  MasterOutput
	Outputs []ResolutionOutput
}
