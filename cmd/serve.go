package cmd

import (
	"fmt"
	"log/slog"

	"github.com/memorable/voicenotes/internal/server"
	"github.com/memorable/voicenotes/internal/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local control server",
	Long: `Start the JSON control server so recording and playback can be driven
from another device on the same network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		svc := service.New(cfg)
		srv := server.New(svc, port)

		slog.Info("voicenotes control server starting", "port", port)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the control server (defaults to config)")
}
