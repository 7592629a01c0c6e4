package main

import (
	"context"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/fiducial/logging"
)

// loadImages decodes every path concurrently and resizes frames that do not match
// width x height. Images are returned in the order of paths.
func loadImages(ctx context.Context, paths []string, width, height int, logger logging.Logger) ([]image.Image, error) {
	imgs := make([]image.Image, len(paths))
	errs, ctx := errgroup.WithContext(ctx)
	errs.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		errs.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := imaging.Open(path, imaging.AutoOrientation(true))
			if err != nil {
				return errors.Wrapf(err, "cannot open %q", path)
			}
			if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
				logger.Debugw("resizing frame", "path", path, "from", b.Size(), "width", width, "height", height)
				img = imaging.Resize(img, width, height, imaging.Lanczos)
			}
			imgs[i] = img
			return nil
		})
	}
	if err := errs.Wait(); err != nil {
		return nil, err
	}
	return imgs, nil
}
