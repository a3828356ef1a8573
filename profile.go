// SPDX-License-Identifier: MIT

package hlsforge

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Preset selects the encoder's speed/quality trade-off.
type Preset string

const (
	PresetUltrafast Preset = "ultrafast"
	PresetSuperfast Preset = "superfast"
	PresetVeryfast  Preset = "veryfast"
	PresetFaster    Preset = "faster"
	PresetFast      Preset = "fast"
	PresetMedium    Preset = "medium"
	PresetSlow      Preset = "slow"
	PresetSlower    Preset = "slower"
	PresetVeryslow  Preset = "veryslow"
)

var presets = map[Preset]bool{
	PresetUltrafast: true,
	PresetSuperfast: true,
	PresetVeryfast:  true,
	PresetFaster:    true,
	PresetFast:      true,
	PresetMedium:    true,
	PresetSlow:      true,
	PresetSlower:    true,
	PresetVeryslow:  true,
}

// AudioCodec selects the audio encoder for a rendition.
type AudioCodec string

const (
	AudioAAC    AudioCodec = "aac"
	AudioMP3    AudioCodec = "libmp3lame"
	AudioVorbis AudioCodec = "libvorbis"
)

var audioCodecs = map[AudioCodec]bool{
	AudioAAC:    true,
	AudioMP3:    true,
	AudioVorbis: true,
}

// AudioBitrate is the audio target bitrate in the encoder's "<kbps>k"
// form. The three tiers cover the common ladder; any value matching the
// form within [32k,512k] is accepted.
type AudioBitrate string

const (
	AudioBitrateLow    AudioBitrate = "128k"
	AudioBitrateMedium AudioBitrate = "256k"
	AudioBitrateHigh   AudioBitrate = "320k"
)

const (
	// CRF bounds of the video encoder's constant-rate-factor scale.
	CRFMin = 0
	CRFMax = 51

	audioBitrateMinK = 32
	audioBitrateMaxK = 512
)

// ProfileSpec is the caller-facing description of one output rendition.
// Zero values select defaults where noted; NewProfile validates and
// freezes the spec into a ProcessingProfile.
type ProfileSpec struct {
	Width  int
	Height int
	CRF    int
	Preset Preset

	AudioCodec   AudioCodec   // default: aac
	AudioBitrate AudioBitrate // empty omits the bitrate flag

	// Encrypt enables per-rendition AES-128 segment encryption.
	Encrypt bool
	// KeyURI is the URI players fetch the key from. Empty defaults to
	// the rendition's relative key file name, e.g. "720p.key".
	KeyURI string
	// IVHex optionally pins the initialization vector (32 hex chars).
	// Empty draws a random IV.
	IVHex string
}

// ProcessingProfile is a validated rendition description. Construct it
// with NewProfile; the zero value is not usable.
type ProcessingProfile struct {
	width   int
	height  int
	crf     int
	preset  Preset
	acodec  AudioCodec
	abr     AudioBitrate
	encrypt bool
	keyURI  string
	iv      []byte
}

// NewProfile validates spec and returns the frozen profile.
func NewProfile(spec ProfileSpec) (ProcessingProfile, error) {
	var p ProcessingProfile

	if spec.Width <= 0 || spec.Height <= 0 {
		return p, &ProfileError{Field: "resolution", Reason: fmt.Sprintf("%dx%d: dimensions must be positive", spec.Width, spec.Height)}
	}
	if spec.Width%2 != 0 || spec.Height%2 != 0 {
		return p, &ProfileError{Field: "resolution", Reason: fmt.Sprintf("%dx%d: dimensions must be even", spec.Width, spec.Height)}
	}
	if spec.CRF < CRFMin || spec.CRF > CRFMax {
		return p, &ProfileError{Field: "crf", Reason: fmt.Sprintf("%d out of range [%d,%d]", spec.CRF, CRFMin, CRFMax)}
	}
	if spec.Preset == "" {
		return p, &ProfileError{Field: "preset", Reason: "required"}
	}
	if !presets[spec.Preset] {
		return p, &ProfileError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", spec.Preset)}
	}

	acodec := spec.AudioCodec
	if acodec == "" {
		acodec = AudioAAC
	}
	if !audioCodecs[acodec] {
		return p, &ProfileError{Field: "audio_codec", Reason: fmt.Sprintf("unknown codec %q", acodec)}
	}
	if spec.AudioBitrate != "" {
		if err := checkAudioBitrate(string(spec.AudioBitrate)); err != nil {
			return p, &ProfileError{Field: "audio_bitrate", Reason: err.Error()}
		}
	}

	p = ProcessingProfile{
		width:   spec.Width,
		height:  spec.Height,
		crf:     spec.CRF,
		preset:  spec.Preset,
		acodec:  acodec,
		abr:     spec.AudioBitrate,
		encrypt: spec.Encrypt,
	}

	if spec.Encrypt {
		p.keyURI = spec.KeyURI
		if p.keyURI == "" {
			p.keyURI = p.Tag() + ".key"
		}
		if spec.IVHex != "" {
			iv, err := hex.DecodeString(spec.IVHex)
			if err != nil || len(iv) != 16 {
				return ProcessingProfile{}, &ProfileError{Field: "iv", Reason: fmt.Sprintf("%q: want 32 hex characters", spec.IVHex)}
			}
			p.iv = iv
		}
	} else if spec.KeyURI != "" || spec.IVHex != "" {
		return ProcessingProfile{}, &ProfileError{Field: "encrypt", Reason: "key URI or IV set without encryption enabled"}
	}

	return p, nil
}

// MustProfile is NewProfile for hand-written ladders; it panics on an
// invalid spec.
func MustProfile(spec ProfileSpec) ProcessingProfile {
	p, err := NewProfile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func (p ProcessingProfile) Width() int                 { return p.width }
func (p ProcessingProfile) Height() int                { return p.height }
func (p ProcessingProfile) CRF() int                   { return p.crf }
func (p ProcessingProfile) Preset() Preset             { return p.preset }
func (p ProcessingProfile) AudioCodec() AudioCodec     { return p.acodec }
func (p ProcessingProfile) AudioBitrate() AudioBitrate { return p.abr }
func (p ProcessingProfile) Encrypted() bool            { return p.encrypt }
func (p ProcessingProfile) KeyURI() string             { return p.keyURI }

// Tag is the rendition's file-name stem, derived from its height,
// e.g. "720p". Profiles within one job must have distinct tags.
func (p ProcessingProfile) Tag() string {
	return strconv.Itoa(p.height) + "p"
}

func checkAudioBitrate(v string) error {
	numeric, ok := strings.CutSuffix(v, "k")
	if !ok {
		return fmt.Errorf("%q: want the form \"<kbps>k\"", v)
	}
	kbps, err := strconv.Atoi(numeric)
	if err != nil {
		return fmt.Errorf("%q: want the form \"<kbps>k\"", v)
	}
	if kbps < audioBitrateMinK || kbps > audioBitrateMaxK {
		return fmt.Errorf("%dk out of range [%dk,%dk]", kbps, audioBitrateMinK, audioBitrateMaxK)
	}
	return nil
}
