//go:build linux

package camera

import (
	"context"
	"sync"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"golang.org/x/xerrors"
)

// V4L2 reads frames from the first video device via pion/mediadevices.
type V4L2 struct {
	cfg    Config
	mu     sync.Mutex
	track  *mediadevices.VideoTrack
	reader video.Reader
}

func OpenV4L2(cfg Config) (*V4L2, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(cfg.Width)
			c.Height = prop.Int(cfg.Height)
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to open camera: %w", err)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, xerrors.Errorf("no video track: %w", ErrUnavailable)
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return nil, xerrors.Errorf("unexpected track type %T: %w", tracks[0], ErrUnavailable)
	}
	return &V4L2{
		cfg:    cfg,
		track:  track,
		reader: track.NewReader(false),
	}, nil
}

func (c *V4L2) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("capture canceled: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	img, release, err := c.reader.Read()
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err.Error(), ErrCaptureFailed)
	}
	defer release()
	return encode(img, c.cfg)
}

func (c *V4L2) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track.Close()
}
