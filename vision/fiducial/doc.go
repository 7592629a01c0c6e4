// Package fiducial locates square binary fiducial tags in camera frames and recovers the pose of each
// tag relative to the camera.
//
// A Manager owns the external tag detector, the tag family descriptor and a reusable grayscale frame
// buffer. Each call to ProcessImage converts the frame, runs the detector, discards degenerate
// detections, estimates every remaining tag's pose in parallel and publishes the frame's result set,
// replacing the previous one.
//
// Tag coordinates follow the usual detector convention: the homography of a detection maps the
// canonical square [-1,1]x[-1,1] onto the image, corner i being the image of CanonicalCorners[i].
// Poses are expressed in the camera frame (x right, y down, z forward) in the unit of the tag size.
package fiducial
