// ABOUTME: CLI entrypoint for the mock pipeline server used in development and demos.
// ABOUTME: Serves scripted SSE scenarios over HTTP with graceful shutdown on interrupt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/spyglass-sh/spyglass/mockpipe"
)

var version = "dev"

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8000", "Listen address")
		scenarioPath = flag.String("scenario", "", "YAML scenario file (default: built-in happy path)")
		showVersion  = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("spyglass-mockd %s\n", version)
		os.Exit(0)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	scenario := mockpipe.DefaultScenario()
	if *scenarioPath != "" {
		loaded, err := mockpipe.LoadScenario(*scenarioPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load scenario")
		}
		scenario = loaded
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: mockpipe.NewServer(scenario, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Str("scenario", scenario.Name).Msg("mock pipeline server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
