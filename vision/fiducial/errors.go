package fiducial

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUseAfterClose is the panic value when a closed Manager, or a view it handed out, is used.
	ErrUseAfterClose = errors.New("fiducial manager used after Close")
	// ErrDetectionsInvalidated is the panic value when Detections are read after the next detection call.
	ErrDetectionsInvalidated = errors.New("detections read after the frame they belong to was replaced")
	// ErrFrameInFlight is returned when a frame is submitted while another is still being processed.
	ErrFrameInFlight = errors.New("a frame is already being processed by this manager")
	// ErrInvalidHandle is reported by detectors that produced no usable output for a frame.
	ErrInvalidHandle = errors.New("detector returned an unusable handle")
)

// ResourceCreationError is returned when one of the detector resources could not be allocated or
// configured. The Manager that failed to build must not be used.
type ResourceCreationError struct {
	Resource string
	Err      error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Resource, e.Err)
}

func (e *ResourceCreationError) Unwrap() error {
	return e.Err
}

func newResourceCreationError(resource string, err error) error {
	if err == nil {
		err = ErrInvalidHandle
	}
	return &ResourceCreationError{Resource: resource, Err: err}
}
