package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/spatialmath"
	"go.viam.com/fiducial/utils"
	"go.viam.com/fiducial/vision/fiducial"
)

func posesTable(rs *fiducial.ResultSet) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "ID", "Translation", "Orientation", "Error (px)", "Iterations"})
	for i, p := range rs.Poses() {
		tra := p.Position()
		aa := p.Orientation().AxisAngles()
		iterations := strconv.Itoa(p.Iterations)
		if !p.Converged {
			iterations += " (capped)"
		}
		t.AppendRow([]interface{}{
			fmt.Sprintf("%d", i+1),
			p.Detection.ID,
			fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", tra.X, tra.Y, tra.Z),
			fmt.Sprintf("Theta:%.2f, RX:%.3f, RY:%.3f, RZ:%.3f", utils.RadToDeg(aa.Theta), aa.RX, aa.RY, aa.RZ),
			fmt.Sprintf("%.3f", p.ReprojectionError),
			iterations,
		})
	}
	return t.Render()
}

func intervalsTable(intervals []fiducial.TimingInterval) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Elapsed"})
	for _, in := range intervals {
		t.AppendRow(table.Row{in.Stage, in.Elapsed})
	}
	return t.Render()
}

func summaryTable(stages []fiducial.StageStats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Frames", "Mean", "Median", "P95", "Max"})
	for _, s := range stages {
		t.AppendRow(table.Row{s.Stage, s.Count, s.Mean, s.Median, s.P95, s.Max})
	}
	return t.Render()
}

// parseTag parses ID:X,Y,Z[:THETA,RX,RY,RZ] with theta in degrees.
func parseTag(spec string) (int, spatialmath.Pose, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, nil, errors.Errorf("tag %q must look like ID:X,Y,Z[:THETA,RX,RY,RZ]", spec)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, errors.Wrapf(err, "bad tag id in %q", spec)
	}
	xyz, err := parseFloats(parts[1], 3)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "bad position in %q", spec)
	}
	point := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	if len(parts) == 2 {
		return id, spatialmath.NewPoseFromPoint(point), nil
	}
	aa, err := parseFloats(parts[2], 4)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "bad orientation in %q", spec)
	}
	if aa[1] == 0 && aa[2] == 0 && aa[3] == 0 {
		return 0, nil, errors.Errorf("orientation axis in %q is zero", spec)
	}
	orientation := &spatialmath.R4AA{Theta: utils.DegToRad(aa[0]), RX: aa[1], RY: aa[2], RZ: aa[3]}
	orientation.Normalize()
	return id, spatialmath.NewPose(point, orientation), nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, errors.Errorf("want %d comma separated values, got %d", n, len(fields))
	}
	out := make([]float64, 0, n)
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
