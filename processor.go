// SPDX-License-Identifier: MIT

package hlsforge

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/hlsforge/internal/playlist"
	"github.com/ManuGH/hlsforge/internal/sniff"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultSegmentSeconds is the segment duration used when Options leaves
// it zero.
const DefaultSegmentSeconds = 10

// masterName is the master playlist's name in every result bundle.
const masterName = "master.m3u8"

// Options configures a Processor. The zero value selects the ffmpeg
// engine with ten-second segments, unbounded concurrency, no per-task
// timeout, and a disabled logger.
type Options struct {
	Engine     EngineKind // default EngineFFmpeg
	FFmpegPath string     // default "ffmpeg", resolved via PATH

	SegmentSeconds int           // default DefaultSegmentSeconds
	Concurrency    int           // max renditions encoding at once; <=0 is unbounded
	TaskTimeout    time.Duration // per-rendition deadline; <=0 disables

	Logger zerolog.Logger
}

// Processor turns one source video into an adaptive-bitrate HLS bundle.
// It is safe for concurrent use; each call runs an independent job.
type Processor struct {
	backend     Backend
	concurrency int
	taskTimeout time.Duration
	log         zerolog.Logger
}

// New builds a Processor from opts.
func New(opts Options) (*Processor, error) {
	engine := opts.Engine
	if engine == "" {
		engine = EngineFFmpeg
	}
	if engine != EngineFFmpeg {
		return nil, fmt.Errorf("unknown engine %q", engine)
	}

	segSeconds := opts.SegmentSeconds
	if segSeconds == 0 {
		segSeconds = DefaultSegmentSeconds
	}
	if segSeconds < 1 {
		return nil, fmt.Errorf("segment duration %ds: must be at least 1s", segSeconds)
	}

	return &Processor{
		backend:     newFFmpegBackend(opts.FFmpegPath, segSeconds, opts.Logger),
		concurrency: opts.Concurrency,
		taskTimeout: opts.TaskTimeout,
		log:         opts.Logger,
	}, nil
}

// newWithBackend wires an explicit backend; used by tests.
func newWithBackend(b Backend, opts Options) *Processor {
	return &Processor{
		backend:     b,
		concurrency: opts.Concurrency,
		taskTimeout: opts.TaskTimeout,
		log:         opts.Logger,
	}
}

// Process transcodes the in-memory source video into one rendition per
// profile. The result is all-or-nothing: if any rendition fails, no
// partial bundle is returned and the error is the first failure in
// profile order.
func (p *Processor) Process(ctx context.Context, data []byte, profiles []ProcessingProfile) (*TranscodeResult, error) {
	if got, ok := sniff.Signature(data); !ok {
		return nil, &ValidationError{Got: got, Want: sniff.Marker}
	}
	if err := checkProfiles(profiles); err != nil {
		return nil, err
	}
	return p.run(ctx, inputSource{data: data}, profiles)
}

// ProcessFile is Process for a source video on disk. Only the signature
// prefix is read up front; each rendition task copies the file into its
// own working directory.
func (p *Processor) ProcessFile(ctx context.Context, path string, profiles []ProcessingProfile) (*TranscodeResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	prefix := make([]byte, sniff.MinLen)
	n, _ := f.Read(prefix)
	f.Close()
	if got, ok := sniff.Signature(prefix[:n]); !ok {
		return nil, &ValidationError{Got: got, Want: sniff.Marker}
	}
	if err := checkProfiles(profiles); err != nil {
		return nil, err
	}
	return p.run(ctx, inputSource{path: path}, profiles)
}

func checkProfiles(profiles []ProcessingProfile) error {
	if len(profiles) == 0 {
		return &ProfileError{Field: "profiles", Reason: "at least one profile is required"}
	}
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.height == 0 {
			return &ProfileError{Field: "profiles", Reason: "zero-value profile; construct profiles with NewProfile"}
		}
		tag := p.Tag()
		if seen[tag] {
			return &ProfileError{Field: "profiles", Reason: fmt.Sprintf("duplicate rendition %s", tag)}
		}
		seen[tag] = true
	}
	return nil
}

// run fans the renditions out, waits for every task to finish, and only
// then decides the job's fate. A failing sibling never cancels the
// others; their artifacts are discarded instead, so every working
// directory is cleaned up exactly once by its own task.
func (p *Processor) run(ctx context.Context, src inputSource, profiles []ProcessingProfile) (*TranscodeResult, error) {
	jobID := uuid.NewString()
	log := p.log.With().Str("job", jobID).Logger()
	log.Info().Int("renditions", len(profiles)).Msg("job started")

	outs := make([]ResolutionOutput, len(profiles))
	errs := make([]error, len(profiles))

	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i, profile := range profiles {
		i := i
		task := &resolutionTask{
			jobID:   jobID,
			profile: profile,
			backend: p.backend,
			log:     p.log,
		}
		g.Go(func() error {
			taskCtx := ctx
			if p.taskTimeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, p.taskTimeout)
				defer cancel()
			}
			outs[i], errs[i] = task.run(taskCtx, src)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // tasks report through errs, never the group

	for i, err := range errs {
		if err != nil {
			log.Error().Err(err).Str("rendition", profiles[i].Tag()).Msg("job failed")
			return nil, err
		}
	}

	variants := make([]playlist.Variant, len(outs))
	for i, out := range outs {
		variants[i] = playlist.Variant{
			Path:      out.PlaylistName,
			Width:     out.Width,
			Height:    out.Height,
			Bandwidth: out.Bandwidth,
		}
	}

	log.Info().Msg("job finished")
	return &TranscodeResult{
		Master: MasterOutput{
			Name: masterName,
			Data: playlist.RenderMaster(variants),
		},
		Outputs: outs,
	}, nil
}
