package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "radangel",
		Short: "Gamma spectrum capture for Kromek RadAngel detectors",
		Long: `radangel reads pulse events from a Kromek RadAngel USB detector, logs a
4096-channel spectrum with dead-time corrected live time once per logging
interval and writes the cumulative spectrum as an SPE file when the capture
ends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default is radangel.toml in /etc/radangel, $HOME/.config/radangel or .)")

	root.AddCommand(newCaptureCmd(), newDevicesCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("radangel failed")
		} else {
			logger.Error().Err(err).Msg("radangel failed")
		}
		os.Exit(1)
	}
}
