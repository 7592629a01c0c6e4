package fiducial

import (
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/utils"
)

// An Estimator turns detections into tag poses, one tag per parallel work item.
type Estimator struct {
	refinement RefinementConfig
	logger     logging.Logger

	discarded    atomic.Int64
	nonConverged atomic.Int64
	failed       atomic.Int64
}

// NewEstimator returns an estimator refining poses with the given bounds. Zero values take the defaults.
func NewEstimator(refinement RefinementConfig, logger logging.Logger) *Estimator {
	return &Estimator{refinement: refinement.withDefaults(), logger: logger}
}

type estimate struct {
	pose TagPose
	err  error
}

// Estimate returns the pose of every non-degenerate detection, in input order. Degenerate detections
// and detections whose pose cannot be recovered are dropped and counted.
func (e *Estimator) Estimate(detections []Detection, params CameraParameters) ([]TagPose, error) {
	intrinsics, err := params.PinholeIntrinsics()
	if err != nil {
		return nil, err
	}
	valid := lo.Filter(detections, func(d Detection, _ int) bool {
		return !d.Degenerate()
	})
	if dropped := len(detections) - len(valid); dropped > 0 {
		e.discarded.Add(int64(dropped))
		e.logger.Debugw("discarded degenerate detections", "count", dropped)
	}
	if len(valid) == 0 {
		return []TagPose{}, nil
	}

	solver := &poseSolver{intrinsics: intrinsics, tagSize: params.TagSize, refinement: e.refinement}
	estimates := make([]estimate, len(valid))
	utils.GroupWorkParallel(
		len(valid),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				pose, err := solver.solve(valid[workNum])
				estimates[workNum] = estimate{pose: pose, err: err}
			}, nil
		},
	)

	poses := make([]TagPose, 0, len(valid))
	for i, est := range estimates {
		if est.err != nil {
			e.failed.Inc()
			e.logger.Warnw("cannot estimate tag pose", "id", valid[i].ID, "error", est.err)
			continue
		}
		if !est.pose.Converged {
			e.nonConverged.Inc()
			e.logger.Debugw("tag pose refinement hit the iteration cap",
				"id", est.pose.Detection.ID, "iterations", est.pose.Iterations)
		}
		poses = append(poses, est.pose)
	}
	return poses, nil
}

// Discarded returns the number of degenerate detections dropped so far.
func (e *Estimator) Discarded() int64 {
	return e.discarded.Load()
}

// NonConverged returns the number of poses whose refinement hit the iteration cap.
func (e *Estimator) NonConverged() int64 {
	return e.nonConverged.Load()
}

// Failed returns the number of detections for which no pose could be recovered.
func (e *Estimator) Failed() int64 {
	return e.failed.Load()
}
