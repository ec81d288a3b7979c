package catalog

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
)

// Footprints returns one polygon feature per source, pre-event first, with
// the source reference, phase, and index within its set as properties.
func Footprints(pre, post domain.SourceSet) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	appendFootprints(fc, domain.PhasePre, pre)
	appendFootprints(fc, domain.PhasePost, post)
	return fc
}

func appendFootprints(fc *geojson.FeatureCollection, phase domain.Phase, set domain.SourceSet) {
	for i, b := range set.Bounds {
		bound := orb.Bound{Min: orb.Point{b.Left, b.Bottom}, Max: orb.Point{b.Right, b.Top}}
		f := geojson.NewFeature(bound.ToPolygon())
		f.Properties["ref"] = set.Sources[i].Ref
		f.Properties["phase"] = string(phase)
		f.Properties["index"] = i
		fc.Append(f)
	}
}
