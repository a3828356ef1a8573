// SPDX-License-Identifier: MIT

// Package playlist parses the playlist the encoder wrote and renders the
// canonical media and master playlists of the final bundle.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SegmentRef is one media segment as enumerated by a playlist: its file
// name and the duration the encoder measured for it.
type SegmentRef struct {
	Name     string
	Duration float64
}

// ParseMedia extracts the ordered segment references from media playlist
// text. It fails closed: a URI without a preceding EXTINF, a malformed
// duration, or a negative duration is an error rather than a guess.
func ParseMedia(r io.Reader) ([]SegmentRef, error) {
	scanner := bufio.NewScanner(r)

	var (
		refs        []SegmentRef
		nextDur     float64
		haveNextDur bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid EXTINF duration %q", durPart)
			}
			if secs < 0 {
				return nil, fmt.Errorf("negative EXTINF duration %q", durPart)
			}
			nextDur = secs
			haveNextDur = true
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		// URI line: one segment.
		if !haveNextDur {
			return nil, fmt.Errorf("segment %q has no preceding EXTINF", line)
		}
		refs = append(refs, SegmentRef{Name: line, Duration: nextDur})
		nextDur = 0
		haveNextDur = false
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}
