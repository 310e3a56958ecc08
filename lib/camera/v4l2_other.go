//go:build !linux

package camera

import "golang.org/x/xerrors"

type V4L2 struct {
	Unavailable
}

func OpenV4L2(Config) (*V4L2, error) {
	return nil, xerrors.Errorf("v4l2 needs linux: %w", ErrUnavailable)
}
