// SPDX-License-Identifier: MIT

package hlsforge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/hlsforge/internal/playlist"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func validInput() []byte {
	header := []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
	return append(header, bytes.Repeat([]byte{0x42}, 64)...)
}

// fakeBackend stands in for the encoder: Run writes a small playlist
// plus segments into the working directory the way ffmpeg would, with
// per-rendition failures, delays and segment sizes scripted by tag.
type fakeBackend struct {
	mu        sync.Mutex
	workDirs  map[string]string
	completed []string

	fail     map[string]error
	delay    map[string]time.Duration
	segBytes map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		workDirs: make(map[string]string),
		fail:     make(map[string]error),
		delay:    make(map[string]time.Duration),
		segBytes: make(map[string]int),
	}
}

func tagOf(job JobPaths) string {
	return strings.TrimSuffix(job.PlaylistName, ".m3u8")
}

func (f *fakeBackend) BuildCommand(p ProcessingProfile, job JobPaths) ([]string, error) {
	return []string{"fake-encode", job.PlaylistName}, nil
}

func (f *fakeBackend) Run(ctx context.Context, job JobPaths, args []string) error {
	tag := tagOf(job)

	f.mu.Lock()
	f.workDirs[tag] = job.WorkDir
	f.mu.Unlock()

	if _, err := os.Stat(filepath.Join(job.WorkDir, job.InputName)); err != nil {
		return fmt.Errorf("input not materialized: %w", err)
	}
	if job.KeyInfoName != "" {
		if _, err := os.Stat(filepath.Join(job.WorkDir, job.KeyInfoName)); err != nil {
			return fmt.Errorf("key info not written: %w", err)
		}
	}

	if d := f.delay[tag]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	defer func() {
		f.mu.Lock()
		f.completed = append(f.completed, tag)
		f.mu.Unlock()
	}()

	if err := f.fail[tag]; err != nil {
		return err
	}

	size := f.segBytes[tag]
	if size == 0 {
		size = 100
	}
	durations := []float64{10.0, 4.5}
	var pl strings.Builder
	pl.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n")
	pl.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i, d := range durations {
		name := fmt.Sprintf("%s_%03d.ts", tag, i)
		if err := os.WriteFile(filepath.Join(job.WorkDir, name), bytes.Repeat([]byte{0xAA}, size), 0o600); err != nil {
			return err
		}
		fmt.Fprintf(&pl, "#EXTINF:%.6f,\n%s\n", d, name)
	}
	pl.WriteString("#EXT-X-ENDLIST\n")
	return os.WriteFile(filepath.Join(job.WorkDir, job.PlaylistName), []byte(pl.String()), 0o600)
}

func (f *fakeBackend) Collect(p ProcessingProfile, job JobPaths) ([]Segment, error) {
	return collectOutputs(job)
}

func (f *fakeBackend) completedTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

func (f *fakeBackend) assertWorkDirsRemoved(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for tag, dir := range f.workDirs {
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err), "working directory of %s must be removed, got err=%v", tag, err)
	}
}

func ladder(t *testing.T) []ProcessingProfile {
	t.Helper()
	return []ProcessingProfile{
		MustProfile(ProfileSpec{Width: 854, Height: 480, CRF: 28, Preset: PresetFast}),
		MustProfile(ProfileSpec{Width: 1920, Height: 1080, CRF: 21, Preset: PresetFast}),
		MustProfile(ProfileSpec{Width: 1280, Height: 720, CRF: 23, Preset: PresetFast}),
	}
}

func TestProcessOutputsFollowProfileOrder(t *testing.T) {
	fb := newFakeBackend()
	fb.segBytes["480p"] = 100
	fb.segBytes["1080p"] = 900
	fb.segBytes["720p"] = 400
	// Completion order is scrambled on purpose.
	fb.delay["480p"] = 80 * time.Millisecond
	fb.delay["1080p"] = 20 * time.Millisecond

	p := newWithBackend(fb, Options{})
	res, err := p.Process(context.Background(), validInput(), ladder(t))
	require.NoError(t, err)
	require.Len(t, res.Outputs, 3)

	assert.Equal(t, 480, res.Outputs[0].Height)
	assert.Equal(t, 1080, res.Outputs[1].Height)
	assert.Equal(t, 720, res.Outputs[2].Height)

	fb.assertWorkDirsRemoved(t)
}

func TestProcessMasterOrderedByMeasuredBandwidth(t *testing.T) {
	fb := newFakeBackend()
	fb.segBytes["480p"] = 100
	fb.segBytes["1080p"] = 900
	fb.segBytes["720p"] = 400

	p := newWithBackend(fb, Options{})
	res, err := p.Process(context.Background(), validInput(), ladder(t))
	require.NoError(t, err)

	assert.Equal(t, "master.m3u8", res.Master.Name)
	master := string(res.Master.Data)
	i1080 := strings.Index(master, "1080p.m3u8")
	i720 := strings.Index(master, "720p.m3u8\n")
	i480 := strings.Index(master, "480p.m3u8")
	require.NotEqual(t, -1, i1080)
	assert.Less(t, i1080, i720, "highest bandwidth first")
	assert.Less(t, i720, i480)

	// Bandwidth is measured from produced bytes, not guessed from the
	// rung index: two segments of 900 bytes over 14.5 seconds.
	assert.Equal(t, int64(993), res.Outputs[1].Bandwidth)
	assert.Contains(t, master, "BANDWIDTH=993,RESOLUTION=1920x1080")
}

func TestProcessAllOrNothing(t *testing.T) {
	fb := newFakeBackend()
	fb.fail["720p"] = &ExecError{ExitCode: 1, Stderr: "boom"}

	p := newWithBackend(fb, Options{})
	res, err := p.Process(context.Background(), validInput(), ladder(t))

	require.Error(t, err)
	assert.Nil(t, res, "a failing rendition must not yield a partial bundle")

	var execErr *ExecError
	assert.ErrorAs(t, err, &execErr)

	// Successful siblings ran to completion and still got cleaned up.
	fb.assertWorkDirsRemoved(t)
}

func TestProcessFirstFailureInProfileOrder(t *testing.T) {
	errLow := &ExecError{ExitCode: 2, Stderr: "low rung"}
	errHigh := &ExecError{ExitCode: 3, Stderr: "high rung"}

	fb := newFakeBackend()
	fb.fail["480p"] = errLow
	fb.fail["720p"] = errHigh
	// The later profile fails first in wall-clock time.
	fb.delay["480p"] = 120 * time.Millisecond

	p := newWithBackend(fb, Options{})
	_, err := p.Process(context.Background(), validInput(), ladder(t))

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.ExitCode, "the first failure in profile order wins")
}

func TestProcessFailureDoesNotCancelSiblings(t *testing.T) {
	fb := newFakeBackend()
	fb.fail["480p"] = &ExecError{ExitCode: 1}
	fb.delay["1080p"] = 150 * time.Millisecond

	p := newWithBackend(fb, Options{})
	_, err := p.Process(context.Background(), validInput(), ladder(t))
	require.Error(t, err)

	assert.Contains(t, fb.completedTags(), "1080p",
		"a failing sibling must not cancel renditions already in flight")
}

func TestProcessConcurrencyLimit(t *testing.T) {
	fb := newFakeBackend()
	for _, tag := range []string{"480p", "1080p", "720p"} {
		fb.delay[tag] = 50 * time.Millisecond
	}

	p := newWithBackend(fb, Options{Concurrency: 1})
	start := time.Now()
	_, err := p.Process(context.Background(), validInput(), ladder(t))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond,
		"with a limit of one the renditions run sequentially")
}

func TestProcessCancellation(t *testing.T) {
	fb := newFakeBackend()
	for _, tag := range []string{"480p", "1080p", "720p"} {
		fb.delay[tag] = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	p := newWithBackend(fb, Options{})
	start := time.Now()
	_, err := p.Process(ctx, validInput(), ladder(t))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	fb.assertWorkDirsRemoved(t)
}

func TestProcessTaskTimeout(t *testing.T) {
	fb := newFakeBackend()
	fb.delay["720p"] = 10 * time.Second

	p := newWithBackend(fb, Options{TaskTimeout: 50 * time.Millisecond})
	_, err := p.Process(context.Background(), validInput(), ladder(t))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	fb.assertWorkDirsRemoved(t)
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	p := newWithBackend(newFakeBackend(), Options{})

	t.Run("wrong signature", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0x00, 0x20, 'm', 'o', 'o', 'v', 0, 0, 0, 0}
		_, err := p.Process(context.Background(), data, ladder(t))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "moov", verr.Got)
		assert.Equal(t, "ftyp", verr.Want)
	})

	t.Run("truncated input", func(t *testing.T) {
		_, err := p.Process(context.Background(), []byte{0x00, 0x01}, ladder(t))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("no profiles", func(t *testing.T) {
		_, err := p.Process(context.Background(), validInput(), nil)
		var perr *ProfileError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("duplicate renditions", func(t *testing.T) {
		dup := []ProcessingProfile{
			MustProfile(ProfileSpec{Width: 1280, Height: 720, CRF: 23, Preset: PresetFast}),
			MustProfile(ProfileSpec{Width: 960, Height: 720, CRF: 25, Preset: PresetFast}),
		}
		_, err := p.Process(context.Background(), validInput(), dup)
		var perr *ProfileError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Reason, "720p")
	})

	t.Run("zero value profile", func(t *testing.T) {
		_, err := p.Process(context.Background(), validInput(), []ProcessingProfile{{}})
		var perr *ProfileError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestProcessEncryptedRendition(t *testing.T) {
	profiles := []ProcessingProfile{
		MustProfile(ProfileSpec{
			Width: 1280, Height: 720, CRF: 23, Preset: PresetFast,
			Encrypt: true,
			IVHex:   "000102030405060708090a0b0c0d0e0f",
		}),
	}

	p := newWithBackend(newFakeBackend(), Options{})
	res, err := p.Process(context.Background(), validInput(), profiles)
	require.NoError(t, err)

	out := res.Outputs[0]
	require.NotNil(t, out.Encryption)
	assert.Len(t, out.Encryption.Key, 16)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f", out.Encryption.IVHex())
	assert.Equal(t, "720p.key", out.Encryption.KeyURI)

	pl := string(out.Playlist)
	assert.Contains(t, pl, `#EXT-X-KEY:METHOD=AES-128,URI="720p.key",IV=0x000102030405060708090a0b0c0d0e0f`)
	assert.Equal(t, 1, strings.Count(pl, "#EXT-X-KEY"))
}

func TestProcessPlaylistRoundTrip(t *testing.T) {
	p := newWithBackend(newFakeBackend(), Options{})
	res, err := p.Process(context.Background(), validInput(), ladder(t))
	require.NoError(t, err)

	for _, out := range res.Outputs {
		refs, err := playlist.ParseMedia(bytes.NewReader(out.Playlist))
		require.NoError(t, err)
		require.Len(t, refs, len(out.Segments))
		for i, ref := range refs {
			assert.Equal(t, out.Segments[i].Name, ref.Name)
			assert.InDelta(t, out.Segments[i].Duration, ref.Duration, 0.001)
		}
	}
}

func TestProcessFile(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.mp4")
		require.NoError(t, os.WriteFile(path, validInput(), 0o600))

		p := newWithBackend(newFakeBackend(), Options{})
		res, err := p.ProcessFile(context.Background(), path, ladder(t))
		require.NoError(t, err)
		assert.Len(t, res.Outputs, 3)
	})

	t.Run("missing file", func(t *testing.T) {
		p := newWithBackend(newFakeBackend(), Options{})
		_, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), ladder(t))
		assert.Error(t, err)
	})

	t.Run("wrong signature", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "in.txt")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a video"), 0o600))

		p := newWithBackend(newFakeBackend(), Options{})
		_, err := p.ProcessFile(context.Background(), path, ladder(t))
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestNewOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := New(Options{})
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("unknown engine", func(t *testing.T) {
		_, err := New(Options{Engine: "gstreamer"})
		assert.Error(t, err)
	})

	t.Run("negative segment seconds", func(t *testing.T) {
		_, err := New(Options{SegmentSeconds: -1})
		assert.Error(t, err)
	})
}

func TestFFmpegBackendBuildCommand(t *testing.T) {
	b := newFFmpegBackend("", 6, zerolog.Nop())
	p := MustProfile(ProfileSpec{Width: 1280, Height: 720, CRF: 23, Preset: PresetFast, AudioBitrate: AudioBitrateHigh})

	args, err := b.BuildCommand(p, JobPaths{
		InputName:      "input.mp4",
		PlaylistName:   "720p.m3u8",
		SegmentPattern: "720p_%03d.ts",
		KeyInfoName:    "720p.keyinfo",
	})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-vf scale=1280:720")
	assert.Contains(t, joined, "-crf 23")
	assert.Contains(t, joined, "-preset fast")
	assert.Contains(t, joined, "-b:a 320k")
	assert.Contains(t, joined, "-hls_time 6")
	assert.Contains(t, joined, "-hls_key_info_file 720p.keyinfo")
	assert.Equal(t, "720p.m3u8", args[len(args)-1])
}

func TestCollectOutputs(t *testing.T) {
	writeFiles := func(t *testing.T, files map[string][]byte) JobPaths {
		t.Helper()
		dir := t.TempDir()
		for name, data := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
		}
		return JobPaths{WorkDir: dir, PlaylistName: "720p.m3u8"}
	}

	t.Run("missing playlist", func(t *testing.T) {
		job := writeFiles(t, nil)
		_, err := collectOutputs(job)
		var cerr *CollectError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("playlist without segments", func(t *testing.T) {
		job := writeFiles(t, map[string][]byte{
			"720p.m3u8": []byte("#EXTM3U\n#EXT-X-ENDLIST\n"),
		})
		_, err := collectOutputs(job)
		var cerr *CollectError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("referenced segment missing", func(t *testing.T) {
		job := writeFiles(t, map[string][]byte{
			"720p.m3u8": []byte("#EXTM3U\n#EXTINF:10,\ngone.ts\n#EXT-X-ENDLIST\n"),
		})
		_, err := collectOutputs(job)
		var cerr *CollectError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Path, "gone.ts")
	})

	t.Run("empty segment", func(t *testing.T) {
		job := writeFiles(t, map[string][]byte{
			"720p.m3u8": []byte("#EXTM3U\n#EXTINF:10,\nseg.ts\n#EXT-X-ENDLIST\n"),
			"seg.ts":    {},
		})
		_, err := collectOutputs(job)
		var cerr *CollectError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("segment path escape rejected", func(t *testing.T) {
		job := writeFiles(t, map[string][]byte{
			"720p.m3u8": []byte("#EXTM3U\n#EXTINF:10,\n../../etc/passwd\n#EXT-X-ENDLIST\n"),
		})
		_, err := collectOutputs(job)
		var cerr *CollectError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Err.Error(), "escapes")
	})
}
