package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/internal/log"
	"github.com/teslashibe/go-voicechat/pkg/app"
)

func newServeCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and live session service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o)
			if err != nil {
				return fmt.Errorf("❌ configuration error: %w", err)
			}

			out := cmd.OutOrStdout()
			banner(out, "serve")
			fmt.Fprintf(out, "   Provider: %s\n", cfg.Voice.Provider)
			fmt.Fprintf(out, "   Media:    %s\n", cfg.Media)
			fmt.Fprintf(out, "   Mode:     %s\n", cfg.Voice.Mode)
			fmt.Fprintf(out, "🌐 Dashboard on http://localhost%s\n", cfg.Server.Addr)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	o.register(cmd)
	cmd.Flags().StringVar(&o.addr, "addr", "", "HTTP listen address")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(cfg, log.L())
	if err != nil {
		return fmt.Errorf("❌ configuration error: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return fmt.Errorf("❌ initialization failed: %w", err)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("❌ runtime error: %w", err)
	}
	log.Info("👋 shutting down")
	return nil
}
