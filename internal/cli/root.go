// Package cli defines the Cobra commands for the voicechat binary.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/internal/log"
)

var (
	configPath string
	logLevel   string
	debug      bool
	version    = "dev" // set via ldflags at build time
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voicechat",
		Short: "Live voice and vision chat with Gemini",
		Long: `voicechat streams your microphone (and optionally camera) to the
Gemini Live API and plays the spoken reply, with a web dashboard for
control, transcripts and metrics.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logLevel
			if debug {
				level = "debug"
			}
			if level != "" {
				log.Init(level)
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default voicechat.yaml if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTalkCmd())
	root.AddCommand(newDevicesCmd())
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// overrides are flag values applied over the loaded configuration.
type overrides struct {
	provider string
	media    string
	mode     string
	addr     string
}

func (o *overrides) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.provider, "provider", "", "Live provider: gemini, gemini-ws, mock")
	cmd.Flags().StringVar(&o.media, "media", "", "Media backend: local, device, webrtc, mock")
	cmd.Flags().StringVar(&o.mode, "mode", "", "Capture mode: audio, audio+video")
}

// loadConfig reads the configuration, applies flag overrides and
// validates the result.
func loadConfig(o overrides) (*config.Config, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}
	if o.provider != "" {
		cfg.Voice.Provider = o.provider
	}
	if o.media != "" {
		cfg.Media = o.media
	}
	if o.mode != "" {
		cfg.Voice.Mode = o.mode
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if logLevel == "" && !debug {
		log.Init(cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func banner(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🎙️  voicechat "+version+" - "+title)
	fmt.Fprintln(w)
}
