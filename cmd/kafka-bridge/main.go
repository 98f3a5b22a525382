// kafka-bridge relays messages between a broker topic and PubNub channels
// in both directions. Configuration comes from the environment, optionally
// seeded from .env files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	kafkabridge "github.com/glimte/kafka-bridge"
	"github.com/glimte/kafka-bridge/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFiles []string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("kafka-bridge", pflag.ContinueOnError)
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "load environment from these files before reading configuration")
	flagSet.StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("kafka-bridge %s\n", kafkabridge.Version)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if logLevel != "" {
		if _, err := config.ParseLevel(logLevel); err != nil {
			return err
		}
		cfg.LogLevel = logLevel
	}

	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	client, err := kafkabridge.NewClient(cfg, kafkabridge.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Bridge stopped")
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `kafka-bridge - relay a broker topic to and from PubNub channels

Usage:
  kafka-bridge [flags]

Required environment:
  KAFKA_BROKERS (or RABBITMQ_URL with BROKER_DRIVER=rabbitmq)
  KAFKA_TOPIC, KAFKA_PARTITION
  PUBNUB_CHANNEL, PUBNUB_PUBLISH_KEY, PUBNUB_SUBSCRIBE_KEY

Flags:
%s`, flagSet.FlagUsages())
}
