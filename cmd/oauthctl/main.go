package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", "", "Path to the provider catalog (JSON)")
	storeDir    = flag.String("store-dir", defaultStoreDir(), "Directory for the encrypted token store")
	showVersion = flag.Bool("version", false, "Show version information")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("oauthctl version %s\n", version)
		os.Exit(0)
	}

	setupLogging()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := dispatch(ctx, args[0], args[1:]); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if isUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks a dispatch failure as a bad-invocation error (unknown
// command, missing/invalid arguments) rather than an operational one, so
// main can map it to the conventional exit code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUsageError(err error) bool {
	var u usageError
	return errors.As(err, &u)
}

func dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "auth":
		return cmdAuth(ctx, args)
	case "token":
		return cmdToken(ctx, args)
	case "refresh":
		return cmdRefresh(ctx, args)
	case "inspect":
		return cmdInspect(ctx, args)
	case "revoke":
		return cmdRevoke(ctx, args)
	case "tokens":
		return cmdTokens(ctx, args)
	default:
		printUsage()
		return usageError{fmt.Errorf("unknown command %q", cmd)}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `oauthctl - OAuth 2.0 / OIDC client CLI

Usage:
  oauthctl [flags] <command> [args]

Commands:
  auth <provider>            run the Authorization Code (+PKCE) flow interactively
  token <grant-type>          acquire a token via a non-interactive grant
  refresh [provider|token]    refresh a stored or given token
  inspect [token]              decode and verify a token's claims
  revoke <token>               revoke a token at its provider
  tokens list|clear|remove     manage the local token store

Flags:
`)
	flag.PrintDefaults()
}

func setupLogging() {
	level := parseLogLevel(*logLevel)
	if *debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if *debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "oauthctl")
	}
	return ".oauthctl"
}
