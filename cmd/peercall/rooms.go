package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/signaling"
	"github.com/mossy-p/peercall/internal/ui"
)

var (
	flagPassword string
	flagDelete   bool
)

var roomsCmd = &cobra.Command{
	Use:   "rooms [room-id]",
	Short: "Show rooms on the signaling server",
	Long: `Without an argument, list every live room (needs the operator password).
With a room id, show how full that room is.

Examples:
  peercall rooms standup
  peercall rooms --password hunter2
  peercall rooms standup --password hunter2 --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadClient(config.ClientOptions{SignalURL: flagSignalURL})
		api, err := signaling.NewAPIClient(cfg.SignalURL)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if len(args) == 1 && !flagDelete {
			return showRoom(ctx, api, args[0])
		}

		password := flagPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if password == "" {
			return errors.New("operator password required (--password or $ADMIN_PASSWORD)")
		}
		token, err := api.Login(ctx, password)
		if err != nil {
			return err
		}

		if flagDelete {
			if len(args) != 1 {
				return errors.New("--delete needs a room id")
			}
			if err := api.DeleteRoom(ctx, token, args[0]); err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("Room %s cleared", args[0]))
			return nil
		}

		rooms, err := api.Rooms(ctx, token)
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, ui.RoomsTable(rooms))
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "operator password (default $ADMIN_PASSWORD)")
	roomsCmd.Flags().BoolVar(&flagDelete, "delete", false, "evict everyone from the given room")
}

func showRoom(ctx context.Context, api *signaling.APIClient, roomID string) error {
	info, err := api.Room(ctx, roomID)
	if errors.Is(err, signaling.ErrNotFound) {
		ui.PrintInfof("Room %s is empty", roomID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Out, ui.RoomBox(info))
	return nil
}
