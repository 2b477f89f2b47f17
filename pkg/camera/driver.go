package camera

import (
	"errors"
	"sync"
)

// ErrNoDriver is returned by Open when no capture driver is registered.
var ErrNoDriver = errors.New("camera: no capture driver registered")

// OpenFunc opens a local capture device by index.
type OpenFunc func(device int) (Source, error)

var (
	driverMu sync.RWMutex
	driver   OpenFunc
)

// RegisterDriver installs the local capture driver. Driver packages call
// it from init, e.g. camera/opencv.
func RegisterDriver(fn OpenFunc) {
	driverMu.Lock()
	defer driverMu.Unlock()
	driver = fn
}

// Open opens a local capture device with the registered driver.
func Open(device int) (Source, error) {
	driverMu.RLock()
	fn := driver
	driverMu.RUnlock()
	if fn == nil {
		return nil, ErrNoDriver
	}
	return fn(device)
}
