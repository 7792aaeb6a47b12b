package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/radangel/radangel/internal/config"
	"github.com/radangel/radangel/internal/device"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached RadAngel detectors",
		Long:  `List the USB HID paths of attached RadAngel detectors with the device id each one would be logged under.`,
		Args:  cobra.NoArgs,
		RunE:  runDevices,
	}
}

func runDevices(cmd *cobra.Command, _ []string) error {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}

	cfg, err := config.Load(nil, opts...)
	if err != nil {
		return err
	}

	devices, err := device.Enumerate()
	if err != nil {
		return err
	}

	return printDevices(cmd, cfg, devices)
}

func printDevices(cmd *cobra.Command, cfg *config.Config, devices []device.Info) error {
	out := cmd.OutOrStdout()

	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No RadAngel devices found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tDEVICE ID\tMANUFACTURER\tPRODUCT\tSERIAL")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Path, cfg.ResolveDeviceID(d.Path), d.Manufacturer, d.Product, d.Serial)
	}

	return w.Flush()
}
