package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onfert/analyst/internal/audio"
)

func devicesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := audio.NewBackend(a.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			devices, err := backend.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				marker := " "
				if d.IsDefault {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-8s %2d  %s\n", marker, d.Kind, d.Index, d.Name)
			}
			return nil
		},
	}
}
