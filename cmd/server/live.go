package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/onfert/analyst/internal/audio"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/models"
)

func liveCommand(a *app) *cobra.Command {
	var dumpDir string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Talk to the live assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateLive(); err != nil {
				return err
			}
			backend, err := audio.NewBackend(a.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			reporter := a.newReporter()
			defer reporter.Flush()

			session := a.newLiveSession(backend, nil, reporter, dumpDir)
			out := cmd.OutOrStdout()
			ended := make(chan struct{}, 1)
			unsubscribe := session.Subscribe(func(ev live.Event) {
				switch ev.Kind {
				case live.EventEntry:
					printEntry(out, ev.Entry)
				case live.EventState:
					if ev.State == live.StateIdle {
						select {
						case ended <- struct{}{}:
						default:
						}
					}
				}
			})
			defer unsubscribe()

			ctx := cmd.Context()
			if err := session.Start(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				session.Stop()
			case <-ended:
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dumpDir, "dump-dir", "", "write captured and received audio as WAV files here")
	return cmd
}

func printEntry(w io.Writer, e models.TranscriptionEntry) {
	label := map[models.Speaker]string{
		models.SpeakerUser:   "Você",
		models.SpeakerModel:  "Assistente",
		models.SpeakerSystem: "*",
	}[e.Speaker]
	fmt.Fprintf(w, "%s: %s\n", label, e.Text)
}
