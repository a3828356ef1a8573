// SPDX-License-Identifier: MIT

// Package hlsforge transcodes a source video into an adaptive-bitrate
// HLS bundle: one media playlist plus segments per requested rendition,
// and a master playlist ordering the renditions by measured bandwidth.
//
// The package shells out to ffmpeg for the actual encoding. Each
// rendition runs in its own scratch directory that is removed when the
// rendition finishes, succeeds or fails; results are returned in memory
// and the caller owns persistence. Jobs are all-or-nothing: a single
// failing rendition fails the whole job.
//
// Construct a Processor for repeated jobs, or use the package-level
// Process, ProcessFile and ProcessEncrypted helpers for one-shot calls
// with default options.
package hlsforge

import "context"

// Process transcodes the in-memory source video with default options.
func Process(ctx context.Context, data []byte, profiles []ProcessingProfile) (*TranscodeResult, error) {
	p, err := New(Options{})
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, data, profiles)
}

// ProcessFile transcodes the source video at path with default options.
func ProcessFile(ctx context.Context, path string, profiles []ProcessingProfile) (*TranscodeResult, error) {
	p, err := New(Options{})
	if err != nil {
		return nil, err
	}
	return p.ProcessFile(ctx, path, profiles)
}

// ProcessEncrypted is Process with AES-128 segment encryption forced on
// for every profile that did not already enable it. Profiles keep their
// own key URIs; renditions without one default to "<tag>.key".
func ProcessEncrypted(ctx context.Context, data []byte, profiles []ProcessingProfile) (*TranscodeResult, error) {
	enc := make([]ProcessingProfile, len(profiles))
	for i, pr := range profiles {
		if !pr.encrypt {
			pr.encrypt = true
			if pr.keyURI == "" {
				pr.keyURI = pr.Tag() + ".key"
			}
		}
		enc[i] = pr
	}
	return Process(ctx, data, enc)
}
