package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dautsuro/shelfsieve/internal/render"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously scan the listing and classify new items",
	Long: `Poll the listing at the configured interval, fetching and classifying
items as they appear. Classifications stream to the console; press Ctrl+C
to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sink := &render.ConsoleSink{W: os.Stdout}

		eng, err := buildEngine(sink, -1)
		if err != nil {
			return err
		}
		defer eng.db.Close()

		hide, err := eng.db.HideRejected()
		if err != nil {
			return fmt.Errorf("reading display preference: %w", err)
		}
		sink.HideRejected = hide

		go eng.queue.Run(ctx)
		go eng.rec.Run(ctx)

		eng.rec.Kick()

		ticker := time.NewTicker(eng.cfg.WatchIntervalDuration())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				eng.rec.Kick()
			}
		}
	},
}
