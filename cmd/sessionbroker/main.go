package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-broker/guard"
	"github.com/jrsteele09/go-session-broker/identity/provider"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/server"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	overrides := &config.Overrides{}
	overrides.BindFlags(pflag.CommandLine)
	pflag.Parse()

	c := config.New(overrides)
	setupLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	// One identity client and session for the life of the process; restarts
	// of the HTTP server keep the signed-in account.
	idp, err := provider.New(c)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid identity provider configuration")
	}
	sessions := session.NewManager(idp, c.GetScopes())
	sessions.Initialize()

	for {
		if err := run(c, sessions); err != nil {
			log.Err(err).Msg("Error running session broker")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Session broker stopped")
}

func run(c config.Config, sessions *session.Manager) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, sessions, guard.New(sessions, server.RouteHome)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Session broker listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
