package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mdlayher/wlanmgr"
)

func newMonitorCmd() *cobra.Command {
	var (
		dur       time.Duration
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Log the events reported by the firmware transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := wlanmgr.DialFirmware()
			if err != nil {
				return fmt.Errorf("failed to dial firmware: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			if dur > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, dur)
				defer tcancel()
			}

			return monitor(ctx, f, cmd.OutOrStdout(), log.StandardLogger(), showStats)
		},
	}

	cmd.Flags().DurationVar(&dur, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&showStats, "stats", true, "Print event counters on exit")

	return cmd
}

// A listener is a Firmware which also delivers events.
type listener interface {
	wlanmgr.Firmware
	Listen(ctx context.Context, h wlanmgr.EventHandler) error
}

// monitor feeds events from f into a Device until ctx is done. f is closed
// along with the Device on return.
func monitor(ctx context.Context, f listener, w io.Writer, logger log.FieldLogger, showStats bool) error {
	d, err := wlanmgr.New(f, nil, &wlanmgr.Config{
		Logger:    logger,
		DebugMask: wlanmgr.DebugEvents,
	})
	if err != nil {
		return err
	}
	// Closing the Device closes f.
	defer d.Close()

	h := &logHandler{log: logger, next: d}
	if err := f.Listen(ctx, h); err != nil {
		return fmt.Errorf("failed to listen for events: %w", err)
	}

	if showStats {
		printCounters(w, d.EventCounters())
	}
	return nil
}

// A logHandler logs each event before passing it on.
type logHandler struct {
	log  log.FieldLogger
	next wlanmgr.EventHandler
}

func (h *logHandler) HandleEvent(ev wlanmgr.Event) {
	h.log.WithField("event", fmt.Sprintf("%T", ev)).Infof("%+v", ev)
	h.next.HandleEvent(ev)
}
