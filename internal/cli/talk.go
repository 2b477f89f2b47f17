package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/app"
	"github.com/teslashibe/go-voicechat/pkg/voice"
	_ "github.com/teslashibe/go-voicechat/pkg/voice/bundled"
)

func newTalkCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Talk from the terminal without the dashboard",
		Long: `talk opens a live session on this machine's microphone, speaker and
camera (or mock devices with --media mock) and prints status changes and
finished turns until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o)
			if err != nil {
				return fmt.Errorf("❌ configuration error: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return talk(ctx, cfg, cmd.OutOrStdout())
		},
	}
	o.register(cmd)
	return cmd
}

func talk(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger := log.Component(log.L(), "talk")
	vcfg, err := app.VoiceConfig(cfg)
	if err != nil {
		return err
	}

	in, spk := app.AudioConfigs(cfg)
	var devices voice.Devices
	switch cfg.Media {
	case config.MediaLocal:
		devices = app.LocalDevices(in, spk, cfg.Camera.Device, logger)
	case config.MediaMock:
		devices = app.MockDevices(in, spk, logger)
	default:
		return fmt.Errorf("talk needs local or mock media, not %q", cfg.Media)
	}

	session, err := voice.NewSession(vcfg, devices, voice.WithLogger(log.L()))
	if err != nil {
		return err
	}
	defer session.Shutdown()

	p := newTurnPrinter(out)
	session.OnStateChange(p.update)

	banner(out, "talk")
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("❌ connect failed: %w", err)
	}
	fmt.Fprintln(out, "🎤 Listening. Press Ctrl+C to stop.")

	<-ctx.Done()
	fmt.Fprintln(out)
	if err := session.Close(); err != nil {
		return err
	}
	p.flush()
	fmt.Fprintln(out, "👋 Bye")
	return nil
}

// turnPrinter writes status changes and completed turns. The session
// clears both transcripts when a turn completes, so the last non-empty
// values seen are the finished turn.
type turnPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	status voice.Status
	input  string
	output string
	lang   string
}

func newTurnPrinter(out io.Writer) *turnPrinter {
	return &turnPrinter{out: out}
}

func (p *turnPrinter) update(st voice.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Status != p.status {
		p.status = st.Status
		fmt.Fprintf(p.out, "%s %s\n", statusIcon(st.Status), st.Status)
		if st.Status == voice.StatusError && st.Error != "" {
			fmt.Fprintf(p.out, "   %s\n", st.Error)
		}
	}

	if st.InputTranscript == "" && st.OutputTranscript == "" {
		p.printTurn()
		return
	}
	p.input, p.output = st.InputTranscript, st.OutputTranscript
	if st.Language != "" {
		p.lang = st.Language
	}
}

func (p *turnPrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printTurn()
}

func (p *turnPrinter) printTurn() {
	if p.input == "" && p.output == "" {
		return
	}
	if p.input != "" {
		if p.lang != "" {
			fmt.Fprintf(p.out, "🗣️  You (%s): %s\n", p.lang, p.input)
		} else {
			fmt.Fprintf(p.out, "🗣️  You: %s\n", p.input)
		}
	}
	if p.output != "" {
		fmt.Fprintf(p.out, "🤖 Gemini: %s\n", p.output)
	}
	p.input, p.output = "", ""
}

func statusIcon(s voice.Status) string {
	switch s {
	case voice.StatusConnecting:
		return "🔌"
	case voice.StatusListening:
		return "👂"
	case voice.StatusSpeaking:
		return "🔊"
	case voice.StatusError:
		return "❌"
	default:
		return "💤"
	}
}
