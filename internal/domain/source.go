package domain

import (
	"fmt"
	"strings"
)

// ImageSource references raster imagery by path or URL.
type ImageSource struct {
	Ref string `json:"ref" yaml:"ref"`
}

// Phase distinguishes imagery captured before and after the event.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// PhaseOf classifies a source reference by the "pre-event"/"post-event"
// naming convention of the imagery catalog. The second result is false when
// the reference carries neither marker.
func PhaseOf(ref string) (Phase, bool) {
	switch {
	case strings.Contains(ref, "pre-event"):
		return PhasePre, true
	case strings.Contains(ref, "post-event"):
		return PhasePost, true
	default:
		return "", false
	}
}

// SourceSet pairs imagery sources with their geographic bounds. Sources[i]
// is covered by Bounds[i].
type SourceSet struct {
	Sources []ImageSource
	Bounds  []BoundingBox
}

// Len returns the number of sources.
func (s SourceSet) Len() int { return len(s.Sources) }

// Add appends a source and its bounds.
func (s *SourceSet) Add(src ImageSource, bounds BoundingBox) {
	s.Sources = append(s.Sources, src)
	s.Bounds = append(s.Bounds, bounds)
}

// Validate checks that the two slices are parallel.
func (s SourceSet) Validate() error {
	if len(s.Sources) != len(s.Bounds) {
		return fmt.Errorf("source set mismatch: %d sources, %d bounds", len(s.Sources), len(s.Bounds))
	}
	return nil
}
