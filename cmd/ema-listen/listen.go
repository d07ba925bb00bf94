package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koscakluka/ema-listen/core/events"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"github.com/koscakluka/ema-listen/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-listen/core/speechtotext/streaming"
	"github.com/koscakluka/ema-listen/internal/transcriptstore"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen <file|url|-|mic>",
	Short: "Transcribe with classic streaming results",
	Args:  cobra.ExactArgs(1),
	RunE:  runListen,
}

var fluxCmd = &cobra.Command{
	Use:   "flux <file|url|-|mic>",
	Short: "Transcribe with turn detection",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlux,
}

func init() {
	listenCmd.Flags().String("language", "en-US", "spoken language")
	listenCmd.Flags().Bool("interim-results", false, "show interim results")
	listenCmd.Flags().Duration("utterance-end", time.Second, "silence reported as an utterance end, 0 disables")
	listenCmd.Flags().Duration("endpointing", 300*time.Millisecond, "silence that finalizes a segment, 0 disables")
	listenCmd.Flags().Bool("smart-format", true, "apply smart formatting")
	listenCmd.Flags().Bool("punctuate", false, "add punctuation")
	listenCmd.Flags().Bool("vad-events", true, "report when speech starts")

	fluxCmd.Flags().Float64("eager-eot-threshold", 0, "confidence for an eager end of turn, 0 disables")
	fluxCmd.Flags().Float64("eot-threshold", 0, "confidence for an end of turn (default from the service)")
	fluxCmd.Flags().Duration("eot-timeout", 0, "silence that forces an end of turn (default from the service)")
	fluxCmd.Flags().Bool("show-updates", false, "log turn updates as they arrive")
}

func runListen(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	language, _ := flags.GetString("language")
	interim, _ := flags.GetBool("interim-results")
	utteranceEnd, _ := flags.GetDuration("utterance-end")
	endpointing, _ := flags.GetDuration("endpointing")
	smartFormat, _ := flags.GetBool("smart-format")
	punctuate, _ := flags.GetBool("punctuate")
	vadEvents, _ := flags.GetBool("vad-events")

	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithLanguage(language),
		speechtotext.WithInterimResults(interim),
		speechtotext.WithEndpointing(endpointing),
		speechtotext.WithSmartFormat(smartFormat),
		speechtotext.WithPunctuate(punctuate),
		speechtotext.WithVADEvents(vadEvents),
	}
	if utteranceEnd > 0 {
		opts = append(opts, speechtotext.WithUtteranceEnd(utteranceEnd))
	}

	return run(cmd, args[0], interim, func(ctx context.Context, client *deepgram.TranscriptionClient, extra ...speechtotext.TranscriptionOption) (*streaming.Session, error) {
		return client.Listen(ctx, append(extra, opts...)...)
	})
}

func runFlux(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	var opts []speechtotext.TranscriptionOption
	if threshold, _ := flags.GetFloat64("eager-eot-threshold"); threshold > 0 {
		opts = append(opts, speechtotext.WithEagerEndOfTurnThreshold(threshold))
	}
	if threshold, _ := flags.GetFloat64("eot-threshold"); threshold > 0 {
		opts = append(opts, speechtotext.WithEndOfTurnThreshold(threshold))
	}
	if timeout, _ := flags.GetDuration("eot-timeout"); timeout > 0 {
		opts = append(opts, speechtotext.WithEndOfTurnTimeout(timeout))
	}
	showUpdates, _ := flags.GetBool("show-updates")

	return run(cmd, args[0], showUpdates, func(ctx context.Context, client *deepgram.TranscriptionClient, extra ...speechtotext.TranscriptionOption) (*streaming.Session, error) {
		return client.Flux(ctx, append(extra, opts...)...)
	})
}

type connectFunc func(ctx context.Context, client *deepgram.TranscriptionClient, opts ...speechtotext.TranscriptionOption) (*streaming.Session, error)

func run(cmd *cobra.Command, sourceArg string, verbose bool, connect connectFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The first interrupt stops the audio source and lets the stream finish;
	// a second one kills the process.
	sourceCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sourceCtx.Done()
		stop()
	}()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := openSource(sourceCtx, sourceArg, cfg)
	if err != nil {
		return err
	}

	client, err := deepgram.NewTranscriptionClient(
		deepgram.WithAPIKey(cfg.APIKey),
		deepgram.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return err
	}

	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithEncodingInfo(src.Encoding),
		speechtotext.WithCloseTimeout(cfg.CloseTimeout),
		speechtotext.WithKeyterms(cfg.Keyterms...),
	}
	if cfg.Model != "" {
		opts = append(opts, speechtotext.WithModel(cfg.Model))
	}

	session, err := connect(ctx, client, opts...)
	if err != nil {
		return err
	}
	defer session.Close()
	logger.Debug("connected", "request_id", session.RequestID())

	record := func(ev events.Event) {
		recordCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Record(recordCtx, session.RequestID(), ev); err != nil {
			logger.Warn("failed to store transcript", "error", err)
		}
	}

	if cfg.TUI {
		err = runTUI(ctx, stop, session, src.Frames, cfg.KeepAlive, record)
	} else {
		out := printer{out: cmd.OutOrStdout(), interim: verbose}
		err = stream(ctx, session, src.Frames, cfg.KeepAlive, func(ev events.Event) error {
			record(ev)
			return out.handle(ev)
		})
	}
	if err != nil {
		return err
	}

	if err := src.Err(); err != nil {
		return fmt.Errorf("audio source failed: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, databaseURL string) (*transcriptstore.Store, func(), error) {
	if databaseURL == "" {
		return transcriptstore.New(nil), func() {}, nil
	}

	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := transcriptstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to prepare database: %w", err)
	}
	return store, db.Close, nil
}
