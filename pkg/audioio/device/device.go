// Package device registers the hardware audio backend: microphone capture
// through miniaudio (malgo) and speaker output through oto.
//
// Import it for side effects:
//
//	import _ "github.com/teslashibe/go-voicechat/pkg/audioio/device"
package device

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/teslashibe/go-voicechat/pkg/audioio"
)

func init() {
	audioio.RegisterBackend(audioio.BackendMalgo, audioio.Driver{
		NewSource:  newMicrophone,
		NewSpeaker: newSpeaker,
		Devices:    listDevices,
	})
}

func listDevices() ([]audioio.DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var out []audioio.DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := mctx.Devices(kind)
		if err != nil {
			return nil, fmt.Errorf("device: enumerate: %w", err)
		}
		for _, info := range infos {
			out = append(out, audioio.DeviceInfo{
				ID:        info.ID.String(),
				Name:      info.Name(),
				IsDefault: info.IsDefault != 0,
				Capture:   kind == malgo.Capture,
			})
		}
	}
	return out, nil
}

// findDevice returns the device whose name or id matches want.
func findDevice(mctx *malgo.AllocatedContext, kind malgo.DeviceType, want string) (*malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == want || infos[i].ID.String() == want {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("device: %q not found", want)
}
