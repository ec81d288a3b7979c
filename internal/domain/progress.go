package domain

import "time"

// ProgressKind identifies a step in patch extraction.
type ProgressKind string

const (
	ProgressPointStarted  ProgressKind = "point_started"
	ProgressPatchWritten  ProgressKind = "patch_written"
	ProgressSourceSkipped ProgressKind = "source_skipped"
	ProgressNoCoverage    ProgressKind = "no_coverage"
	ProgressPointDone     ProgressKind = "point_done"
)

// ProgressEvent reports one step of a batch run. Fields that do not apply to
// a kind are left zero; SourceIndex is -1 when no source is involved.
type ProgressEvent struct {
	Kind        ProgressKind  `json:"kind"`
	RunID       string        `json:"run_id,omitempty"`
	Event       string        `json:"event,omitempty"`
	Phase       Phase         `json:"phase,omitempty"`
	PointIndex  int           `json:"point_index"`
	SourceIndex int           `json:"source_index"`
	Ref         string        `json:"ref,omitempty"`
	Path        string        `json:"path,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	At          time.Time     `json:"at"`
}

// NewProgressEvent stamps an event with the package clock.
func NewProgressEvent(kind ProgressKind, pointIndex, sourceIndex int) ProgressEvent {
	return ProgressEvent{
		Kind:        kind,
		PointIndex:  pointIndex,
		SourceIndex: sourceIndex,
		At:          clock.Now().UTC(),
	}
}

// Observer receives progress events. Implementations must be safe for
// concurrent use when the batch runs with more than one worker.
type Observer interface {
	Observe(ev ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ProgressEvent)

func (f ObserverFunc) Observe(ev ProgressEvent) { f(ev) }

// NopObserver discards every event.
var NopObserver Observer = ObserverFunc(func(ProgressEvent) {})
