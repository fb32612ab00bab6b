package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okabe/liveroom/internal/domain"
)

var (
	hostRoomName string
	hostName     string
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Create a room and go live",
	RunE:  runHost,
}

func init() {
	hostCmd.Flags().StringVar(&hostRoomName, "name", "demo room", "room name")
	hostCmd.Flags().StringVar(&hostName, "as", "host", "display name")
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	coord, sig, err := newCoordinator(ctx)
	if err != nil {
		return err
	}
	defer sig.Close()

	snap, err := coord.CreateRoom(ctx, domain.RoomName(hostRoomName), hostName)
	if err != nil {
		return err
	}
	fmt.Printf("live: room %s (%q), %d seats\n", snap.Room.ID, snap.Room.Name, len(snap.Seats))
	fmt.Println("ctrl-c to finish the live")

	<-ctx.Done()
	finishCtx, finishCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer finishCancel()
	if err := coord.FinishLive(finishCtx); err != nil {
		log.Warn().Err(err).Str("module", "cmd").Msg("finish live")
	}
	return nil
}
