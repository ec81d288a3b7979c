package domain

// Attribute keys carried on labeled points.
const (
	AttrLabel       = "label"
	AttrCountry     = "country"
	AttrPreImagery  = "exist_pre_event_imagery"
	AttrPostImagery = "exist_post_event_imagery"
)

// LabeledPoint is a building location with its damage label and other
// string-keyed attributes.
type LabeledPoint struct {
	Point
	Attributes map[string]any
}

// NewLabeledPoint returns a point with an empty, non-nil attribute map.
func NewLabeledPoint(p Point) LabeledPoint {
	return LabeledPoint{Point: p, Attributes: map[string]any{}}
}

// Label returns the damage label, or "" when absent.
func (lp LabeledPoint) Label() string { return lp.stringAttr(AttrLabel) }

// Country returns the country attribute, or "" when absent.
func (lp LabeledPoint) Country() string { return lp.stringAttr(AttrCountry) }

// HasPreImagery reports whether any pre-event source covers the point.
func (lp LabeledPoint) HasPreImagery() bool { return lp.boolAttr(AttrPreImagery) }

// HasPostImagery reports whether any post-event source covers the point.
func (lp LabeledPoint) HasPostImagery() bool { return lp.boolAttr(AttrPostImagery) }

// Set stores an attribute, allocating the map if needed.
func (lp *LabeledPoint) Set(key string, value any) {
	if lp.Attributes == nil {
		lp.Attributes = map[string]any{}
	}
	lp.Attributes[key] = value
}

func (lp LabeledPoint) stringAttr(key string) string {
	s, _ := lp.Attributes[key].(string)
	return s
}

func (lp LabeledPoint) boolAttr(key string) bool {
	b, _ := lp.Attributes[key].(bool)
	return b
}

// SetCoverage records whether pre- and post-event imagery covers the point.
func (lp *LabeledPoint) SetCoverage(pre, post bool) {
	lp.Set(AttrPreImagery, pre)
	lp.Set(AttrPostImagery, post)
}

// Covered reports whether either phase has imagery for the point.
func (lp LabeledPoint) Covered() bool {
	return lp.HasPreImagery() || lp.HasPostImagery()
}
