// Package opencv provides a camera.Source backed by a local capture
// device through gocv. Importing it registers the driver used by
// camera.Open.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-voicechat/pkg/camera"
)

func init() {
	camera.RegisterDriver(func(device int) (camera.Source, error) {
		return Open(device)
	})
}

// Camera grabs frames from a local video device.
type Camera struct {
	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// Open opens the capture device with the given index.
func Open(device int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("opencv: open device %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("opencv: device %d not available", device)
	}
	return &Camera{cap: vc, mat: gocv.NewMat()}, nil
}

// Frame reads the next frame from the device.
func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil, camera.ErrNoFrame
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, camera.ErrNoFrame
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("opencv: convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	c.mat.Close()
	return err
}

var _ camera.Source = (*Camera)(nil)
