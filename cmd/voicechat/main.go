// voicechat - live voice and vision chat with Gemini.
package main

import (
	"github.com/teslashibe/go-voicechat/internal/cli"

	// Hardware drivers. Both need cgo.
	_ "github.com/teslashibe/go-voicechat/pkg/audioio/device"
	_ "github.com/teslashibe/go-voicechat/pkg/camera/opencv"
)

func main() {
	cli.Execute()
}
