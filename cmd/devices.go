package cmd

import (
	"fmt"
	"runtime"

	"github.com/memorable/voicenotes/internal/capture"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices and backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Audio capture (%s)\n\n", runtime.GOOS)

		backends := capture.AvailableBackends()
		fmt.Printf("Backends (%d found):\n", len(backends))
		for _, backend := range backends {
			fmt.Printf("  - %s\n", backend)
		}

		devices, err := capture.ListCaptureDevices()
		if err != nil {
			return fmt.Errorf("failed to list capture devices: %w", err)
		}
		fmt.Printf("\nCapture devices (%d found):\n", len(devices))
		for _, device := range devices {
			fmt.Printf("  %d. %s\n", device.Index+1, device.Name)
		}
		return nil
	},
}
