// SPDX-License-Identifier: MIT

package playlist

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Key is the encryption tag rendered into a media playlist. IVHex must be
// 32 hex characters; the tag advertises AES-128 with the given key URI.
type Key struct {
	URI   string
	IVHex string
}

// RenderMedia builds the canonical VOD playlist enumerating segs in
// order. The target duration is the ceiling of the longest segment, the
// media sequence starts at zero, and the optional encryption tag is
// emitted exactly once, before the first segment line.
func RenderMedia(segs []SegmentRef, key *Key) []byte {
	var maxDur float64
	for _, s := range segs {
		if s.Duration > maxDur {
			maxDur = s.Duration
		}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(maxDur)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	if key != nil {
		fmt.Fprintf(&b, "#EXT-X-KEY:METHOD=AES-128,URI=%q,IV=0x%s\n", key.URI, key.IVHex)
	}
	for _, s := range segs {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", s.Duration, s.Name)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return []byte(b.String())
}

// Variant is one rendition entry of a master playlist.
type Variant struct {
	Path      string
	Width     int
	Height    int
	Bandwidth int64
}

// MeasuredBandwidth computes a rendition's average bitrate from what the
// encoder actually produced: total segment bytes times eight over total
// segment duration. It is a pure function of the produced artifacts.
func MeasuredBandwidth(totalBytes int64, totalSeconds float64) int64 {
	if totalSeconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalBytes) * 8 / totalSeconds))
}

// RenderMaster lists the variants by descending measured bandwidth so
// players encounter the highest-quality rendition first. Ties keep their
// relative input order.
func RenderMaster(variants []Variant) []byte {
	ordered := append([]Variant(nil), variants...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Bandwidth > ordered[j].Bandwidth
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range ordered {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", v.Bandwidth, v.Width, v.Height)
		b.WriteString(v.Path + "\n")
	}
	return []byte(b.String())
}
