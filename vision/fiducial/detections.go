package fiducial

import (
	"github.com/pkg/errors"
)

// Detections is a view of the detector output for the latest frame. It stays readable until the
// next detection call or until the Manager is closed; reading it afterwards panics.
type Detections struct {
	owner      *Manager
	generation uint64
	items      []Detection
}

func (d Detections) check() {
	if d.owner == nil {
		return
	}
	if d.owner.closed.Load() {
		panic(ErrUseAfterClose)
	}
	if d.generation != d.owner.generation {
		panic(ErrDetectionsInvalidated)
	}
}

// Len returns the number of detections.
func (d Detections) Len() int {
	d.check()
	return len(d.items)
}

// At returns a copy of the i'th detection.
func (d Detections) At(i int) Detection {
	d.check()
	if i < 0 || i >= len(d.items) {
		panic(errors.Errorf("detection index %d out of range [0, %d)", i, len(d.items)))
	}
	return d.items[i]
}

// Copy returns the detections as an owned slice that outlives the view.
func (d Detections) Copy() []Detection {
	d.check()
	return append([]Detection{}, d.items...)
}
