package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okabe/liveroom/internal/domain"
)

const shutdownTimeout = 5 * time.Second

var (
	joinRoomID    string
	joinName      string
	joinApplySeat int
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room as audience",
	RunE:  runJoin,
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List live rooms",
	RunE:  runRooms,
}

func init() {
	joinCmd.Flags().StringVar(&joinRoomID, "room", "", "room id")
	joinCmd.Flags().StringVar(&joinName, "as", "guest", "display name")
	joinCmd.Flags().IntVar(&joinApplySeat, "apply", 0, "apply for this seat after joining")
	_ = joinCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(roomsCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	coord, sig, err := newCoordinator(ctx)
	if err != nil {
		return err
	}
	defer sig.Close()

	snap, err := coord.JoinRoom(ctx, domain.RoomID(joinRoomID), joinName)
	if err != nil {
		return err
	}
	fmt.Printf("joined %q hosted by %s, %d watching\n", snap.Room.Name, snap.Host.Name, snap.Room.AudienceCount)

	if joinApplySeat > 0 {
		sent, err := coord.ApplyForSeat(ctx, joinApplySeat)
		if err != nil {
			log.Warn().Err(err).Str("module", "cmd").Msg("seat application")
		} else if !sent {
			fmt.Println("applications are disabled in this room")
		} else {
			fmt.Printf("applied for seat %d\n", joinApplySeat)
		}
	}

	<-ctx.Done()
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer leaveCancel()
	if err := coord.LeaveRoom(leaveCtx); err != nil {
		log.Warn().Err(err).Str("module", "cmd").Msg("leave room")
	}
	return nil
}

func runRooms(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	coord, sig, err := newCoordinator(ctx)
	if err != nil {
		return err
	}
	defer sig.Close()

	rooms, err := coord.ListRooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Println("no live rooms")
		return nil
	}
	for _, r := range rooms {
		fmt.Printf("%s  %-20q host=%s seated=%d watching=%d\n",
			r.Room.ID, r.Room.Name, r.HostName, r.Seated, r.Room.AudienceCount)
	}
	return nil
}
