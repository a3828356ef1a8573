// SPDX-License-Identifier: MIT

package hlsforge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ManuGH/hlsforge/internal/keys"
	"github.com/ManuGH/hlsforge/internal/playlist"
	"github.com/rs/zerolog"
)

// taskState tracks one rendition task through its lifecycle. Transitions
// only move forward: pending -> running -> collected | failed.
type taskState int

const (
	statePending taskState = iota
	stateRunning
	stateCollected
	stateFailed
)

func (s taskState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRunning:
		return "running"
	case stateCollected:
		return "collected"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// inputName is the materialized source file's name inside every task
// working directory.
const inputName = "input.mp4"

// inputSource is the validated source video, either an in-memory buffer
// or a path on disk. Exactly one of the two is set.
type inputSource struct {
	data []byte
	path string
}

func (s inputSource) materialize(dst string) error {
	if s.path == "" {
		return os.WriteFile(dst, s.data, 0o600)
	}
	in, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// resolutionTask transcodes one rendition inside its own working
// directory. The directory is removed on every exit path; failures to
// remove it are logged, never returned.
type resolutionTask struct {
	jobID   string
	profile ProcessingProfile
	backend Backend
	log     zerolog.Logger

	state taskState
}

func (t *resolutionTask) run(ctx context.Context, src inputSource) (out ResolutionOutput, err error) {
	tag := t.profile.Tag()
	log := t.log.With().Str("job", t.jobID).Str("rendition", tag).Logger()

	defer func() {
		if err != nil {
			t.state = stateFailed
			log.Error().Err(err).Str("state", t.state.String()).Msg("rendition failed")
		}
	}()

	workDir, err := os.MkdirTemp("", "hlsforge-"+t.jobID+"-"+tag+"-")
	if err != nil {
		return ResolutionOutput{}, fmt.Errorf("create working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			cerr := &CleanupError{Dir: workDir, Err: rmErr}
			log.Warn().Err(cerr).Msg("working directory not removed")
		}
	}()

	t.state = stateRunning
	log.Debug().Str("dir", workDir).Msg("rendition started")

	if err := src.materialize(filepath.Join(workDir, inputName)); err != nil {
		return ResolutionOutput{}, fmt.Errorf("materialize input: %w", err)
	}

	job := JobPaths{
		WorkDir:        workDir,
		InputName:      inputName,
		PlaylistName:   tag + ".m3u8",
		SegmentPattern: tag + "_%03d.ts",
	}

	var (
		material keys.Material
		keyTag   *playlist.Key
		encInfo  *EncryptionInfo
	)
	if t.profile.Encrypted() {
		material, err = keys.Generate(t.profile.iv)
		if err != nil {
			return ResolutionOutput{}, &EncryptError{Err: err}
		}
		art, err := keys.Write(workDir, tag, t.profile.KeyURI(), material)
		if err != nil {
			return ResolutionOutput{}, &EncryptError{Err: err}
		}
		job.KeyInfoName = art.InfoName
		keyTag = &playlist.Key{URI: t.profile.KeyURI(), IVHex: material.IVHex()}
		encInfo = &EncryptionInfo{
			Key:    material.Key,
			IV:     material.IV,
			KeyURI: t.profile.KeyURI(),
		}
	}

	args, err := t.backend.BuildCommand(t.profile, job)
	if err != nil {
		return ResolutionOutput{}, err
	}

	if err := t.backend.Run(ctx, job, args); err != nil {
		return ResolutionOutput{}, err
	}

	segs, err := t.backend.Collect(t.profile, job)
	if err != nil {
		return ResolutionOutput{}, err
	}

	// Re-render the playlist from the collected segments rather than
	// shipping the encoder's file verbatim: the bundle's playlist must
	// reference exactly the segments it carries, with the caller's key
	// URI, independent of encoder version quirks.
	refs := make([]playlist.SegmentRef, len(segs))
	var (
		totalBytes   int64
		totalSeconds float64
	)
	for i, s := range segs {
		refs[i] = playlist.SegmentRef{Name: s.Name, Duration: s.Duration}
		totalBytes += int64(len(s.Data))
		totalSeconds += s.Duration
	}

	t.state = stateCollected
	log.Debug().Int("segments", len(segs)).Msg("rendition collected")

	return ResolutionOutput{
		Width:        t.profile.Width(),
		Height:       t.profile.Height(),
		PlaylistName: job.PlaylistName,
		Playlist:     playlist.RenderMedia(refs, keyTag),
		Segments:     segs,
		Bandwidth:    playlist.MeasuredBandwidth(totalBytes, totalSeconds),
		Encryption:   encInfo,
	}, nil
}
