// SPDX-License-Identifier: MIT

// Command hlsforge transcodes one video file into an adaptive-bitrate
// HLS bundle on disk: a master playlist, and per rendition a media
// playlist, its segments, and (when encrypted) the AES-128 key file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ManuGH/hlsforge"
	xlog "github.com/ManuGH/hlsforge/internal/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// profileDoc is one rendition entry of the -profiles YAML file.
type profileDoc struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	CRF          int    `yaml:"crf"`
	Preset       string `yaml:"preset"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	Encrypt      bool   `yaml:"encrypt"`
	KeyURI       string `yaml:"key_uri"`
	IV           string `yaml:"iv"`
}

func loadProfiles(path string) ([]hlsforge.ProcessingProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []profileDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	profiles := make([]hlsforge.ProcessingProfile, 0, len(docs))
	for i, d := range docs {
		p, err := hlsforge.NewProfile(hlsforge.ProfileSpec{
			Width:        d.Width,
			Height:       d.Height,
			CRF:          d.CRF,
			Preset:       hlsforge.Preset(d.Preset),
			AudioCodec:   hlsforge.AudioCodec(d.AudioCodec),
			AudioBitrate: hlsforge.AudioBitrate(d.AudioBitrate),
			Encrypt:      d.Encrypt,
			KeyURI:       d.KeyURI,
			IVHex:        d.IV,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func writeBundle(outDir string, res *hlsforge.TranscodeResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := renameio.WriteFile(filepath.Join(outDir, res.Master.Name), res.Master.Data, 0o644); err != nil {
		return err
	}
	for _, out := range res.Outputs {
		if err := renameio.WriteFile(filepath.Join(outDir, out.PlaylistName), out.Playlist, 0o644); err != nil {
			return err
		}
		for _, seg := range out.Segments {
			if err := renameio.WriteFile(filepath.Join(outDir, seg.Name), seg.Data, 0o644); err != nil {
				return err
			}
		}
		if out.Encryption != nil {
			// The key lands next to the playlists under its URI's base
			// name; serving it at the real URI is the operator's job.
			name := filepath.Base(out.Encryption.KeyURI)
			if err := renameio.WriteFile(filepath.Join(outDir, name), out.Encryption.Key, 0o600); err != nil {
				return err
			}
		}
	}
	return nil
}

func run() int {
	input := flag.String("input", "", "source video file (required)")
	outDir := flag.String("out", "hls", "output directory for the bundle")
	profilesPath := flag.String("profiles", "", "YAML file describing the renditions (required)")
	ffmpegPath := flag.String("ffmpeg", "", "ffmpeg binary (default: resolved via PATH)")
	segSeconds := flag.Int("segment-seconds", hlsforge.DefaultSegmentSeconds, "target segment duration")
	concurrency := flag.Int("concurrency", 0, "max renditions encoding at once (0 = unbounded)")
	timeout := flag.Duration("timeout", 0, "per-rendition deadline (0 = none)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsforge %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	xlog.Configure(xlog.Config{Level: *logLevel, Service: "hlsforge"})
	logger := xlog.WithComponent("cli")

	if *input == "" || *profilesPath == "" {
		fmt.Fprintln(os.Stderr, "usage: hlsforge -input video.mp4 -profiles profiles.yaml [-out dir]")
		flag.PrintDefaults()
		return 2
	}

	profiles, err := loadProfiles(*profilesPath)
	if err != nil {
		logger.Error().Err(err).Msg("load profiles")
		return 1
	}

	proc, err := hlsforge.New(hlsforge.Options{
		FFmpegPath:     *ffmpegPath,
		SegmentSeconds: *segSeconds,
		Concurrency:    *concurrency,
		TaskTimeout:    *timeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("configure processor")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := proc.ProcessFile(ctx, *input, profiles)
	if err != nil {
		logger.Error().Err(err).Msg("transcode failed")
		return 1
	}

	if err := writeBundle(*outDir, res); err != nil {
		logger.Error().Err(err).Msg("write bundle")
		return 1
	}

	logger.Info().
		Int("renditions", len(res.Outputs)).
		Dur("elapsed", time.Since(start)).
		Str("dir", *outDir).
		Msg("bundle written")
	return 0
}

func main() {
	os.Exit(run())
}
