// SPDX-License-Identifier: MIT

package hlsforge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/hlsforge/internal/ffmpeg"
	"github.com/ManuGH/hlsforge/internal/playlist"
	"github.com/rs/zerolog"
)

// EngineKind names a transcode backend implementation.
type EngineKind string

// EngineFFmpeg is the default backend, shelling out to the ffmpeg binary.
const EngineFFmpeg EngineKind = "ffmpeg"

// JobPaths names one rendition's files inside its working directory.
// All names except WorkDir are relative; the backend runs the encoder
// with its working directory set to WorkDir.
type JobPaths struct {
	WorkDir        string
	InputName      string
	PlaylistName   string
	SegmentPattern string
	KeyInfoName    string // empty when the rendition is unencrypted
}

// Backend abstracts the transcode engine behind three steps: build the
// argument vector, run the process, and collect the produced artifacts.
// Implementations must block in Run until the process has fully exited,
// on every path including cancellation.
type Backend interface {
	BuildCommand(p ProcessingProfile, job JobPaths) ([]string, error)
	Run(ctx context.Context, job JobPaths, args []string) error
	Collect(p ProcessingProfile, job JobPaths) ([]Segment, error)
}

type ffmpegBackend struct {
	bin            string
	segmentSeconds int
	runner         *ffmpeg.Runner
}

func newFFmpegBackend(bin string, segmentSeconds int, log zerolog.Logger) *ffmpegBackend {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &ffmpegBackend{
		bin:            bin,
		segmentSeconds: segmentSeconds,
		runner: &ffmpeg.Runner{
			BinPath: bin,
			Log:     log,
		},
	}
}

func (b *ffmpegBackend) BuildCommand(p ProcessingProfile, job JobPaths) ([]string, error) {
	args, err := ffmpeg.BuildArgs(ffmpeg.Request{
		InputName:      job.InputName,
		PlaylistName:   job.PlaylistName,
		SegmentPattern: job.SegmentPattern,
		Width:          p.Width(),
		Height:         p.Height(),
		CRF:            p.CRF(),
		Preset:         string(p.Preset()),
		AudioCodec:     string(p.AudioCodec()),
		AudioBitrate:   string(p.AudioBitrate()),
		SegmentSeconds: b.segmentSeconds,
		KeyInfoName:    job.KeyInfoName,
	})
	if err != nil {
		return nil, &ProfileError{Field: "command", Reason: err.Error()}
	}
	return args, nil
}

func (b *ffmpegBackend) Run(ctx context.Context, job JobPaths, args []string) error {
	err := b.runner.Run(ctx, job.WorkDir, args)
	if err == nil {
		return nil
	}
	runErr, ok := err.(*ffmpeg.RunError)
	if !ok {
		return err
	}
	switch runErr.Kind {
	case ffmpeg.KindSpawn:
		return &SpawnError{Bin: b.bin, Err: runErr.Err}
	case ffmpeg.KindCanceled:
		return runErr.Err
	default:
		return &ExecError{ExitCode: runErr.ExitCode, Stderr: runErr.Stderr}
	}
}

func (b *ffmpegBackend) Collect(p ProcessingProfile, job JobPaths) ([]Segment, error) {
	return collectOutputs(job)
}

// collectOutputs reads the encoder-written media playlist and loads each
// referenced segment in playlist order. Missing or empty artifacts fail
// the rendition rather than producing a partial bundle.
func collectOutputs(job JobPaths) ([]Segment, error) {
	playlistPath := filepath.Join(job.WorkDir, job.PlaylistName)
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		return nil, &CollectError{Path: playlistPath, Err: err}
	}

	refs, err := playlist.ParseMedia(bytes.NewReader(data))
	if err != nil {
		return nil, &CollectError{Path: playlistPath, Err: err}
	}
	if len(refs) == 0 {
		return nil, &CollectError{Path: playlistPath, Err: fmt.Errorf("playlist references no segments")}
	}

	segs := make([]Segment, 0, len(refs))
	for _, ref := range refs {
		if filepath.Base(ref.Name) != ref.Name {
			return nil, &CollectError{Path: ref.Name, Err: fmt.Errorf("segment reference escapes working directory")}
		}
		segPath := filepath.Join(job.WorkDir, ref.Name)
		data, err := os.ReadFile(segPath)
		if err != nil {
			return nil, &CollectError{Path: segPath, Err: err}
		}
		if len(data) == 0 {
			return nil, &CollectError{Path: segPath, Err: fmt.Errorf("segment is empty")}
		}
		segs = append(segs, Segment{Name: ref.Name, Data: data, Duration: ref.Duration})
	}
	return segs, nil
}
