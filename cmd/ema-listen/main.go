package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/log/global"
)

var logger = log.New(os.Stderr)

var rootCmd = &cobra.Command{
	Use:   "ema-listen",
	Short: "Stream audio to Deepgram and print what it hears",
	Long: `ema-listen streams audio from a file, a URL, stdin or the microphone to
Deepgram's live transcription API and prints the transcripts as they arrive.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("deepgram-api-key", "", "Deepgram API key (default $DEEPGRAM_API_KEY)")
	flags.String("base-url", "https://api.deepgram.com", "Deepgram API base URL")
	flags.Duration("keep-alive", 5*time.Second, "send a keep-alive after this much time without audio, 0 disables")
	flags.Duration("close-timeout", 10*time.Second, "how long to wait for the server to close the stream, 0 waits forever")
	flags.String("encoding", "linear16", "audio encoding: linear16, mulaw or alaw")
	flags.Int("sample-rate", 16000, "audio sample rate in Hz")
	flags.Duration("frame", 20*time.Millisecond, "amount of audio sent per frame")
	flags.Bool("realtime", true, "pace file and URL sources at playback speed")
	flags.StringSlice("keyterm", nil, "key term to boost, may be repeated")
	flags.String("model", "", "model name (default depends on the mode)")
	flags.String("database-url", "", "Postgres URL for storing final transcripts")
	flags.String("sentry-dsn", "", "Sentry DSN for error reporting")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("tui", false, "render a live transcript view")

	for _, name := range []string{
		"deepgram-api-key", "base-url", "keep-alive", "close-timeout", "encoding",
		"sample-rate", "frame", "realtime", "keyterm", "model", "database-url",
		"sentry-dsn", "log-level", "tui",
	} {
		_ = viper.BindPFlag(configKey(name), flags.Lookup(name))
	}

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(fluxCmd)
}

func initConfig() {
	viper.SetConfigName("ema-listen")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logger.Warn("failed to read config file", "error", err)
		}
	}
}

func setup(_ *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetReportTimestamp(true)
	slog.SetDefault(slog.New(logger))
	global.SetLoggerProvider(newSlogLoggerProvider(logger))

	if dsn := viper.GetString("sentry_dsn"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Release:     "ema-listen",
			Environment: os.Getenv("EMA_LISTEN_ENV"),
		})
		if err != nil {
			logger.Warn("sentry init failed", "error", err)
		} else {
			logger.Debug("sentry initialized")
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
	sentry.Flush(2 * time.Second)
}
