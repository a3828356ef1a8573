// SPDX-License-Identifier: MIT

// Package ffmpeg builds argument vectors for the external encoder and
// supervises its process lifecycle.
package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Request carries everything needed to assemble one encoder invocation.
// All file names are relative to the task working directory; the runner
// starts the process with its working directory set there, which keeps
// the playlist's segment references relative too.
type Request struct {
	InputName      string
	PlaylistName   string
	SegmentPattern string // e.g. "720p_%03d.ts"

	Width  int
	Height int
	CRF    int
	Preset string

	AudioCodec   string
	AudioBitrate string // e.g. "256k"; empty omits the flag

	SegmentSeconds int
	KeyInfoName    string // empty disables encryption
}

const (
	crfMin = 0
	crfMax = 51

	audioBitrateMinK = 32
	audioBitrateMaxK = 512
)

// BuildArgs constructs the encoder argument vector for req. It validates
// numeric ranges and fails rather than clamping; the binary name is not
// included (the runner owns binary resolution). The mapping is fully
// deterministic, so callers can assert exact argument sequences.
func BuildArgs(req Request) ([]string, error) {
	if req.InputName == "" {
		return nil, fmt.Errorf("missing input name")
	}
	if req.PlaylistName == "" {
		return nil, fmt.Errorf("missing playlist name")
	}
	if req.SegmentPattern == "" {
		return nil, fmt.Errorf("missing segment pattern")
	}
	if req.Width <= 0 || req.Height <= 0 || req.Width%2 != 0 || req.Height%2 != 0 {
		return nil, fmt.Errorf("resolution %dx%d: dimensions must be positive and even", req.Width, req.Height)
	}
	if req.CRF < crfMin || req.CRF > crfMax {
		return nil, fmt.Errorf("crf %d out of range [%d,%d]", req.CRF, crfMin, crfMax)
	}
	if req.Preset == "" {
		return nil, fmt.Errorf("missing preset")
	}
	if req.SegmentSeconds < 1 {
		return nil, fmt.Errorf("segment duration %ds: must be at least 1s", req.SegmentSeconds)
	}
	if req.AudioBitrate != "" {
		if err := checkAudioBitrate(req.AudioBitrate); err != nil {
			return nil, err
		}
	}

	audioCodec := req.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error", // stderr is captured, keep it signal only
		"-y",
		"-i", req.InputName,
		"-vf", fmt.Sprintf("scale=%d:%d", req.Width, req.Height),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(req.CRF),
		"-preset", req.Preset,
		"-c:a", audioCodec,
	}
	if req.AudioBitrate != "" {
		args = append(args, "-b:a", req.AudioBitrate)
	}

	args = append(args,
		"-hls_time", strconv.Itoa(req.SegmentSeconds),
		"-hls_playlist_type", "vod",
	)
	if req.KeyInfoName != "" {
		args = append(args, "-hls_key_info_file", req.KeyInfoName)
	}
	args = append(args,
		"-hls_segment_filename", req.SegmentPattern,
		req.PlaylistName,
	)

	return args, nil
}

func checkAudioBitrate(v string) error {
	numeric, ok := strings.CutSuffix(v, "k")
	if !ok {
		return fmt.Errorf("audio bitrate %q: want the form \"<kbps>k\"", v)
	}
	kbps, err := strconv.Atoi(numeric)
	if err != nil {
		return fmt.Errorf("audio bitrate %q: want the form \"<kbps>k\"", v)
	}
	if kbps < audioBitrateMinK || kbps > audioBitrateMaxK {
		return fmt.Errorf("audio bitrate %dk out of range [%dk,%dk]", kbps, audioBitrateMinK, audioBitrateMaxK)
	}
	return nil
}
