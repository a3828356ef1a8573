// SPDX-License-Identifier: MIT

package hlsforge

import "fmt"

// ValidationError reports input that failed the container signature
// check before any work was scheduled.
type ValidationError struct {
	Got  string // signature window actually present
	Want string // signature window required
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: signature %q, want %q", e.Got, e.Want)
}

// ProfileError reports a processing profile that failed validation.
type ProfileError struct {
	Field  string
	Reason string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("invalid profile: %s: %s", e.Field, e.Reason)
}

// SpawnError reports that the encoder process could not be started.
type SpawnError struct {
	Bin string
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Bin, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExecError reports an encoder process that started but exited nonzero.
// Stderr carries the tail of the captured standard-error text.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("encoder exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("encoder exited with status %d: %s", e.ExitCode, e.Stderr)
}

// CollectError reports an expected output artifact that was missing,
// empty, or unreadable after the encoder finished.
type CollectError struct {
	Path string
	Err  error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Path, e.Err)
}

func (e *CollectError) Unwrap() error { return e.Err }

// EncryptError reports a failure preparing encryption material for a
// rendition.
type EncryptError struct {
	Err error
}

func (e *EncryptError) Error() string {
	return fmt.Sprintf("encryption setup: %v", e.Err)
}

func (e *EncryptError) Unwrap() error { return e.Err }

// CleanupError reports a working directory that could not be removed.
// Cleanup failures are logged, never returned from processing; the type
// exists so the log entry carries structure.
type CleanupError struct {
	Dir string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Dir, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
