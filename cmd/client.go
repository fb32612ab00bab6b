package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/okabe/liveroom/internal/adapters/rtc"
	"github.com/okabe/liveroom/internal/adapters/signal"
	"github.com/okabe/liveroom/internal/app"
	"github.com/okabe/liveroom/internal/core"
)

// newCoordinator wires signaling client, media engine and coordinator
// for the demo commands. Events are printed as they arrive.
func newCoordinator(ctx context.Context) (*app.Coordinator, *signal.Client, error) {
	sig, err := signal.Dial(ctx, cfg.SignalURL, signal.Options{
		PingPeriod: cfg.PingPeriod,
		ReadLimit:  cfg.ReadLimit,
	})
	if err != nil {
		return nil, nil, err
	}

	eng := rtc.New(rtc.DefaultConfiguration(), cfg.Secret)
	coord := app.New(sig, eng, core.SinkFunc(printEvent),
		app.WithPKInviteTimeout(cfg.PKInviteTimeout))
	go coord.Run(ctx)
	return coord, sig, nil
}

func printEvent(e core.SessionEvent) {
	switch e.Type {
	case core.EventMessageReceived:
		from := ""
		if e.User != nil {
			from = e.User.Name
		}
		fmt.Printf("[%s] %s: %s\n", e.Type, from, e.Text)
	case core.EventSeatsUpdated:
		occupied := 0
		for _, s := range e.Seats {
			if s.User != nil {
				occupied++
			}
		}
		fmt.Printf("[%s] %d/%d seats occupied\n", e.Type, occupied, len(e.Seats))
	case core.EventPKStateChanged:
		fmt.Printf("[%s] %s\n", e.Type, e.PKState)
	case core.EventVolumesUpdated, core.EventNetworkUpdated:
		// Too chatty for the terminal.
	default:
		fmt.Printf("[%s]\n", e.Type)
	}
	log.Debug().Str("module", "cmd").Str("event", e.Type.String()).Msg("session event")
}
