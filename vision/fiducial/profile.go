package fiducial

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// ProfileStamp marks the end of a detector stage, in microseconds since the detector started.
type ProfileStamp struct {
	Name string `json:"name"`
	Time int64  `json:"utime"`
}

// Profile is the timing record of one Detect call.
type Profile struct {
	Start  int64          `json:"start_utime"`
	Stamps []ProfileStamp `json:"stamps"`
}

// TimingInterval is the time spent in one detector stage.
type TimingInterval struct {
	Stage   string
	Elapsed time.Duration
}

// BuildIntervals converts cumulative stamps into per-stage durations. The first stage is measured from start.
func BuildIntervals(stamps []ProfileStamp, start int64) []TimingInterval {
	intervals := make([]TimingInterval, 0, len(stamps))
	prev := start
	for _, s := range stamps {
		intervals = append(intervals, TimingInterval{
			Stage:   s.Name,
			Elapsed: time.Duration(s.Time-prev) * time.Microsecond,
		})
		prev = s.Time
	}
	return intervals
}

// ProfileRecorder keeps the profile of the latest detection and derives its intervals on demand.
// It is safe for concurrent use.
type ProfileRecorder struct {
	mu        sync.Mutex
	profile   Profile
	intervals []TimingInterval
	cached    bool
	summary   *ProfileSummary
}

// NewProfileRecorder returns a recorder. A positive window also keeps a rolling summary over that many frames.
func NewProfileRecorder(window int) *ProfileRecorder {
	r := &ProfileRecorder{}
	if window > 0 {
		r.summary = NewProfileSummary(window)
	}
	return r
}

// Record replaces the current profile. The summary, when kept, is fed from the stamps directly and
// leaves the cached intervals untouched.
func (r *ProfileRecorder) Record(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = Profile{Start: p.Start, Stamps: append([]ProfileStamp(nil), p.Stamps...)}
	r.intervals = nil
	r.cached = false
	if r.summary != nil {
		r.summary.Add(r.profile)
	}
}

// Invalidate drops the current profile.
func (r *ProfileRecorder) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = Profile{}
	r.intervals = nil
	r.cached = false
}

// Intervals returns the per-stage durations of the latest detection.
func (r *ProfileRecorder) Intervals() []TimingInterval {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cached {
		r.intervals = BuildIntervals(r.profile.Stamps, r.profile.Start)
		r.cached = true
	}
	return append([]TimingInterval{}, r.intervals...)
}

// Summary returns a snapshot of the rolling stage summary, or nil if none is kept.
func (r *ProfileRecorder) Summary() *ProfileSummary {
	if r.summary == nil {
		return nil
	}
	return r.summary.Snapshot()
}

// StageStats summarizes the durations of one stage over the summary window.
type StageStats struct {
	Stage  string
	Count  int
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	Max    time.Duration
}

// ProfileSummary aggregates stage durations over the most recent frames. It is safe for concurrent use.
type ProfileSummary struct {
	mu      sync.Mutex
	window  int
	order   []string
	samples map[string][]float64
}

// NewProfileSummary returns a summary over the last window frames.
func NewProfileSummary(window int) *ProfileSummary {
	return &ProfileSummary{window: window, samples: map[string][]float64{}}
}

// Add appends the stage durations of one detection.
func (s *ProfileSummary) Add(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := p.Start
	for _, st := range p.Stamps {
		s.addLocked(st.Name, float64(time.Duration(st.Time-prev)*time.Microsecond))
		prev = st.Time
	}
}

func (s *ProfileSummary) addLocked(stage string, elapsed float64) {
	xs, ok := s.samples[stage]
	if !ok {
		s.order = append(s.order, stage)
	}
	xs = append(xs, elapsed)
	if len(xs) > s.window {
		xs = xs[len(xs)-s.window:]
	}
	s.samples[stage] = xs
}

// Snapshot returns a copy of the summary that later frames do not change.
func (s *ProfileSummary) Snapshot() *ProfileSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &ProfileSummary{
		window:  s.window,
		order:   append([]string(nil), s.order...),
		samples: make(map[string][]float64, len(s.samples)),
	}
	for stage, xs := range s.samples {
		out.samples[stage] = append([]float64(nil), xs...)
	}
	return out
}

// Stages returns the statistics of every stage seen, in first-seen order.
func (s *ProfileSummary) Stages() ([]StageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StageStats, 0, len(s.order))
	for _, name := range s.order {
		xs := s.samples[name]
		mean, err := stats.Mean(xs)
		if err != nil {
			return nil, err
		}
		median, err := stats.Median(xs)
		if err != nil {
			return nil, err
		}
		p95, err := stats.PercentileNearestRank(xs, 95)
		if err != nil {
			return nil, err
		}
		maxVal, err := stats.Max(xs)
		if err != nil {
			return nil, err
		}
		out = append(out, StageStats{
			Stage:  name,
			Count:  len(xs),
			Mean:   time.Duration(mean),
			Median: time.Duration(median),
			P95:    time.Duration(p95),
			Max:    time.Duration(maxVal),
		})
	}
	return out, nil
}
