package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/engine"
	"github.com/mossy-p/peercall/internal/logging"
	"github.com/mossy-p/peercall/internal/media"
	"github.com/mossy-p/peercall/internal/session"
	"github.com/mossy-p/peercall/internal/signaling"
	"github.com/mossy-p/peercall/internal/ui"
)

var (
	flagSTUN       string
	flagNoTieBreak bool
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and call the other participant",
	Long: `Join a two-person room. The call starts as soon as a second participant
joins the same room and ends when either side leaves.

Examples:
  peercall join standup
  peercall join standup --server wss://signal.example.com/ws
  peercall join standup --stun none`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadClient(config.ClientOptions{
			SignalURL:  flagSignalURL,
			STUNServer: flagSTUN,
			NoTieBreak: flagNoTieBreak,
		})
		return runJoin(cmd.Context(), cfg, args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL, or \"none\" (default $STUN_SERVER)")
	joinCmd.Flags().BoolVar(&flagNoTieBreak, "no-tie-break", false, "discard colliding offers on both sides instead of assigning polite/impolite roles")
}

func runJoin(ctx context.Context, cfg *config.ClientConfig, roomID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := signaling.Dial(dialCtx, cfg.SignalURL, logger)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	var iceServers []webrtc.ICEServer
	if urls := cfg.ICEServers(); len(urls) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: urls}}
	}

	ctrl := session.New(session.Options{
		Transport: client,
		TieBreak:  cfg.TieBreak,
		Logger:    logger,
		NewEngine: func() (session.Engine, error) {
			p, err := engine.New(engine.Options{ICEServers: iceServers, Logger: logger})
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		OpenMedia: func() (session.Media, error) {
			s, err := media.Open(media.Options{Audio: true})
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	})

	if err := ctrl.Join(ctx, roomID); err != nil {
		drainUpdates(ctrl)
		switch {
		case errors.Is(err, session.ErrRoomFull):
			return fmt.Errorf("room %q is full (2 participants max)", roomID)
		case errors.Is(err, media.ErrMediaUnavailable):
			return fmt.Errorf("cannot start a call: %w", err)
		default:
			return err
		}
	}

	return followCall(ctx, ctrl, logger)
}

// followCall prints transitions until the call ends or the user interrupts.
func followCall(ctx context.Context, ctrl *session.Controller, logger *slog.Logger) error {
	for {
		select {
		case u := <-ctrl.Updates():
			fmt.Fprintln(ui.Out, ui.StatusLine(u))
			if u.State == session.StateIdle {
				return nil
			}
		case <-ctrl.Done():
			drainUpdates(ctrl)
			return session.ErrClosed
		case <-ctx.Done():
			logger.Debug("interrupted, leaving room")
			if err := ctrl.Leave(); err != nil && !errors.Is(err, session.ErrNotInRoom) {
				return err
			}
			drainUpdates(ctrl)
			return nil
		}
	}
}

func drainUpdates(ctrl *session.Controller) {
	for {
		select {
		case u := <-ctrl.Updates():
			fmt.Fprintln(ui.Out, ui.StatusLine(u))
		default:
			return
		}
	}
}
