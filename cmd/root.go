package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/okabe/liveroom/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "liveroom",
	Short: "Live room signaling server and demo clients",
	Long:  `Room sessions with seats, media status and cross-room battles. Commands: serve, host, join, rooms.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}
