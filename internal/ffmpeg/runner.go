// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/hlsforge/internal/procgroup"
	"github.com/rs/zerolog"
)

// ErrKind classifies how an encoder invocation ended.
type ErrKind string

const (
	// KindSpawn means the process never started (binary missing, OS refusal).
	KindSpawn ErrKind = "spawn"
	// KindExit means the process ran and exited nonzero.
	KindExit ErrKind = "exit"
	// KindCanceled means the context ended and the process group was killed.
	KindCanceled ErrKind = "canceled"
)

// RunError is the runner's failure report. Stderr holds the captured
// standard-error text for KindExit and KindCanceled.
type RunError struct {
	Kind     ErrKind
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	switch e.Kind {
	case KindSpawn:
		return fmt.Sprintf("encoder spawn failed: %v", e.Err)
	case KindCanceled:
		return fmt.Sprintf("encoder canceled: %v", e.Err)
	default:
		return fmt.Sprintf("encoder exited with status %d", e.ExitCode)
	}
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner supervises a single encoder process: spawn in its own process
// group, capture stderr, and reap the whole group if the context ends
// before the process does.
type Runner struct {
	BinPath     string        // encoder binary; resolved via PATH when relative
	Grace       time.Duration // SIGTERM to SIGKILL escalation window
	KillTimeout time.Duration // how long to wait for the group after SIGKILL
	Log         zerolog.Logger
}

const (
	defaultGrace       = 3 * time.Second
	defaultKillTimeout = 10 * time.Second
	stderrRingCapacity = 256
)

// Run executes the encoder with workDir as its working directory and
// blocks until the process has fully exited, on every path including
// cancellation. The returned error is always a *RunError on failure.
func (r *Runner) Run(ctx context.Context, workDir string, args []string) error {
	bin := r.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}
	grace := r.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	killTimeout := r.KillTimeout
	if killTimeout <= 0 {
		killTimeout = defaultKillTimeout
	}

	if err := ctx.Err(); err != nil {
		return &RunError{Kind: KindCanceled, Err: err}
	}

	cmd := exec.Command(bin, args...) // #nosec G204 -- args come from the validated builder
	cmd.Dir = workDir
	procgroup.Set(cmd)

	ring := NewLineRing(stderrRingCapacity)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		startTotal.WithLabelValues("error").Inc()
		return &RunError{Kind: KindSpawn, Err: err}
	}

	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			ring.Append(scanner.Text())
		}
	}()

	r.Log.Debug().Str("bin", bin).Strs("args", args).Str("dir", workDir).Msg("starting encoder")
	if err := cmd.Start(); err != nil {
		startTotal.WithLabelValues("error").Inc()
		return &RunError{Kind: KindSpawn, Err: err}
	}
	startTotal.WithLabelValues("ok").Inc()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if err := procgroup.KillGroup(cmd.Process.Pid, grace, killTimeout); err != nil {
			r.Log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("encoder group kill incomplete")
		}
		<-done
		ioWg.Wait()
		exitTotal.WithLabelValues("canceled").Inc()
		return &RunError{Kind: KindCanceled, Stderr: ring.String(), Err: ctx.Err()}

	case waitErr := <-done:
		ioWg.Wait()
		if waitErr != nil {
			code := 1
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
			exitTotal.WithLabelValues("exit").Inc()
			return &RunError{Kind: KindExit, ExitCode: code, Stderr: ring.String(), Err: waitErr}
		}
		exitTotal.WithLabelValues("ok").Inc()
		return nil
	}
}
