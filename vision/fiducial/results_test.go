package fiducial

import (
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestResults(t *testing.T) {
	var r Results
	empty := r.Current()
	test.That(t, empty, test.ShouldNotBeNil)
	test.That(t, empty.Len(), test.ShouldEqual, 0)
	test.That(t, empty.Frame(), test.ShouldEqual, 0)

	poses := []TagPose{{Detection: Detection{ID: 1}}, {Detection: Detection{ID: 2}}}
	first := r.Publish(poses)
	test.That(t, first.Frame(), test.ShouldEqual, 1)
	test.That(t, r.Current(), test.ShouldEqual, first)

	// the set does not alias the published slice
	poses[0].Detection.ID = 42
	test.That(t, first.At(0).Detection.ID, test.ShouldEqual, 1)
	got := first.Poses()
	got[1].Detection.ID = 43
	test.That(t, first.At(1).Detection.ID, test.ShouldEqual, 2)

	p, ok := first.Find(2)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Detection.ID, test.ShouldEqual, 2)
	_, ok = first.Find(3)
	test.That(t, ok, test.ShouldBeFalse)

	second := r.Publish(nil)
	test.That(t, second.Frame(), test.ShouldEqual, 2)
	test.That(t, second.Len(), test.ShouldEqual, 0)
	test.That(t, first.Len(), test.ShouldEqual, 2)
}

func TestResultsConcurrentReaders(t *testing.T) {
	var r Results
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				rs := r.Current()
				// a set is never a mix of two frames
				for k := 0; k < rs.Len(); k++ {
					test.That(t, rs.At(k).Detection.ID, test.ShouldEqual, int(rs.Frame()))
				}
			}
		}()
	}
	for f := 1; f <= 200; f++ {
		r.Publish([]TagPose{{Detection: Detection{ID: f}}, {Detection: Detection{ID: f}}})
	}
	wg.Wait()
}
