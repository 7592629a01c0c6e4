package fiducial

import (
	"go.uber.org/atomic"
)

// A ResultSet is the immutable set of tag poses found in one frame.
type ResultSet struct {
	frame uint64
	poses []TagPose
}

// Frame returns the sequence number of the frame the set was produced from. Zero means no frame
// has been processed yet.
func (rs *ResultSet) Frame() uint64 {
	return rs.frame
}

// Len returns the number of tags in the set.
func (rs *ResultSet) Len() int {
	return len(rs.poses)
}

// At returns the i'th tag pose.
func (rs *ResultSet) At(i int) TagPose {
	return rs.poses[i]
}

// Poses returns a copy of the tag poses in detection order.
func (rs *ResultSet) Poses() []TagPose {
	return append([]TagPose{}, rs.poses...)
}

// Find returns the pose of the tag with the given id, if present.
func (rs *ResultSet) Find(id int) (TagPose, bool) {
	for _, p := range rs.poses {
		if p.Detection.ID == id {
			return p, true
		}
	}
	return TagPose{}, false
}

var emptyResultSet = &ResultSet{}

// Results holds the latest ResultSet. Readers may load it from any goroutine while a new one is published.
type Results struct {
	current atomic.Pointer[ResultSet]
	frames  atomic.Uint64
}

// Publish replaces the current set with the given poses and returns the new set.
func (r *Results) Publish(poses []TagPose) *ResultSet {
	rs := &ResultSet{frame: r.frames.Inc(), poses: append([]TagPose{}, poses...)}
	r.current.Store(rs)
	return rs
}

// Current returns the latest published set. It is never nil.
func (r *Results) Current() *ResultSet {
	if rs := r.current.Load(); rs != nil {
		return rs
	}
	return emptyResultSet
}
